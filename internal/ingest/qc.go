package ingest

import "github.com/bijux/atlas/pkg/model"

// QCReport is a compact pass/warn summary derived from the anomaly
// report: the anomaly report itself carries the detailed, sorted lists;
// qc.json carries just enough for a human or a CI gate to decide whether
// to look closer, without re-deriving counts from anomaly.json.
type QCReport struct {
	Status string         `json:"status"`
	Counts map[string]int `json:"counts"`
}

func buildQCReport(a *model.AnomalyReport) QCReport {
	counts := map[string]int{
		"missing_parents":                     len(a.MissingParents),
		"missing_transcript_parents":          len(a.MissingTranscriptParents),
		"multiple_parent_transcripts":         len(a.MultipleParentTranscripts),
		"unknown_contigs":                     len(a.UnknownContigs),
		"overlapping_ids":                     len(a.OverlappingIDs),
		"duplicate_gene_ids":                  len(a.DuplicateGeneIDs),
		"overlapping_gene_ids_across_contigs": len(a.OverlappingGeneIDsAcrossContigs),
		"orphan_transcripts":                  len(a.OrphanTranscripts),
		"parent_cycles":                       len(a.ParentCycles),
		"attribute_fallbacks":                 len(a.AttributeFallbacks),
		"unknown_feature_types":               len(a.UnknownFeatureTypes),
		"missing_required_fields":             len(a.MissingRequiredFields),
	}
	status := "pass"
	if hasQCWarn(a) {
		status = "warn"
	}
	return QCReport{Status: status, Counts: counts}
}
