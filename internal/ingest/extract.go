package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bijux/atlas/pkg/model"
)

// extracted holds the raw, not-yet-normalized feature graph built from
// decoded GFF3 rows: genes, transcripts, and per-transcript exon/CDS spans,
// plus every anomaly observed while linking parent/child relationships.
type extracted struct {
	Genes       []rawFeature
	Transcripts []rawFeature
	Exons       map[string][]rawFeature // keyed by transcript ID
	CDS         map[string][]rawFeature // keyed by transcript ID

	Anomaly *anomalyBuilder
}

// anomalyBuilder accumulates anomaly/QC observations during extract and
// normalize; string sets so repeated hits against the same id cost O(1)
// and still land as the sorted, duplicate-free lists the anomaly report
// requires.
type anomalyBuilder struct {
	sets map[string]map[string]struct{}
}

func newAnomalyBuilder() *anomalyBuilder {
	return &anomalyBuilder{sets: make(map[string]map[string]struct{})}
}

func (b *anomalyBuilder) add(category, value string) {
	s, ok := b.sets[category]
	if !ok {
		s = make(map[string]struct{})
		b.sets[category] = s
	}
	s[value] = struct{}{}
}

func (b *anomalyBuilder) sorted(category string) []string {
	s := b.sets[category]
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

const (
	catMissingParents             = "missing_parents"
	catMissingTranscriptParents   = "missing_transcript_parents"
	catMultipleParentTranscripts  = "multiple_parent_transcripts"
	catUnknownContigs             = "unknown_contigs"
	catOverlappingIDs             = "overlapping_ids"
	catDuplicateGeneIDs           = "duplicate_gene_ids"
	catOverlappingAcrossContigs   = "overlapping_gene_ids_across_contigs"
	catOrphanTranscripts          = "orphan_transcripts"
	catParentCycles               = "parent_cycles"
	catAttributeFallbacks         = "attribute_fallbacks"
	catUnknownFeatureTypes        = "unknown_feature_types"
	catMissingRequiredFields      = "missing_required_fields"
)

// extractFeatures partitions decoded rows into genes/transcripts/exons/CDS,
// records unknown-contig and unknown-feature-type observations, and runs
// cycle detection over the Parent graph using integer arena handles so
// ordering never depends on map iteration or allocation order.
func extractFeatures(rows []rawFeature, policies Policies, contigs ContigLengths) (*extracted, error) {
	ex := &extracted{
		Exons:   make(map[string][]rawFeature),
		CDS:     make(map[string][]rawFeature),
		Anomaly: newAnomalyBuilder(),
	}

	byID := make(map[string]rawFeature, len(rows))
	for _, r := range rows {
		if r.ID != "" {
			byID[r.ID] = r
		}
	}

	for _, r := range rows {
		if len(contigs) > 0 {
			if _, ok := contigs[r.SeqID]; !ok {
				ex.Anomaly.add(catUnknownContigs, r.SeqID)
			}
		}

		switch {
		case r.Type == "gene":
			if r.ID == "" {
				ex.Anomaly.add(catMissingRequiredFields, "gene:missing_id:line_"+itoa(r.LineNo))
				continue
			}
			ex.Genes = append(ex.Genes, r)
		case policies.TranscriptType.Accepts(r.Type):
			if r.ID == "" {
				ex.Anomaly.add(catMissingRequiredFields, "transcript:missing_id:line_"+itoa(r.LineNo))
				continue
			}
			ex.Transcripts = append(ex.Transcripts, r)
		case r.Type == "exon":
			parents := splitParents(r.Parent)
			if len(parents) > 1 {
				ex.Anomaly.add(catMultipleParentTranscripts, r.ID)
			}
			for _, p := range parents {
				ex.Exons[p] = append(ex.Exons[p], r)
			}
		case r.Type == "CDS":
			parents := splitParents(r.Parent)
			if len(parents) > 1 {
				ex.Anomaly.add(catMultipleParentTranscripts, r.ID)
			}
			for _, p := range parents {
				ex.CDS[p] = append(ex.CDS[p], r)
			}
		default:
			switch policies.UnknownFeature {
			case model.UnknownFeatureReject:
				return nil, fmt.Errorf("%w: line %d: unknown feature type %q rejected by policy", ErrIngest, r.LineNo, r.Type)
			default:
				ex.Anomaly.add(catUnknownFeatureTypes, r.Type)
			}
		}
	}

	for _, t := range ex.Transcripts {
		parents := splitParents(t.Parent)
		if len(parents) == 0 {
			ex.Anomaly.add(catOrphanTranscripts, t.ID)
			continue
		}
		if len(parents) > 1 {
			ex.Anomaly.add(catMultipleParentTranscripts, t.ID)
		}
		for _, p := range parents {
			if _, ok := byID[p]; !ok {
				ex.Anomaly.add(catMissingParents, t.ID)
			}
		}
	}
	for transcriptID, exons := range ex.Exons {
		if _, ok := byID[transcriptID]; !ok {
			for range exons {
				ex.Anomaly.add(catMissingTranscriptParents, transcriptID)
			}
		}
	}

	if cycles := detectParentCycles(rows); len(cycles) > 0 {
		for _, c := range cycles {
			ex.Anomaly.add(catParentCycles, c)
		}
	}

	return ex, nil
}

func splitParents(parent string) []string {
	if parent == "" {
		return nil
	}
	parts := strings.Split(parent, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// detectParentCycles runs DFS with white/gray/black coloring over integer
// arena handles assigned in input order, so the result is independent of
// map iteration order even though the underlying parent lookup is a map.
func detectParentCycles(rows []rawFeature) []string {
	type color int
	const (
		white color = iota
		gray
		black
	)

	ids := make([]string, 0, len(rows))
	index := make(map[string]int, len(rows))
	parentsOf := make(map[string][]string, len(rows))
	for _, r := range rows {
		if r.ID == "" {
			continue
		}
		if _, ok := index[r.ID]; ok {
			continue
		}
		index[r.ID] = len(ids)
		ids = append(ids, r.ID)
		parentsOf[r.ID] = splitParents(r.Parent)
	}

	colors := make([]color, len(ids))
	var inCycle []string
	var visit func(i int) bool
	visit = func(i int) bool {
		colors[i] = gray
		for _, p := range parentsOf[ids[i]] {
			j, ok := index[p]
			if !ok {
				continue
			}
			if colors[j] == gray {
				inCycle = append(inCycle, ids[i])
				continue
			}
			if colors[j] == white {
				if visit(j) {
					inCycle = append(inCycle, ids[i])
				}
			}
		}
		colors[i] = black
		return false
	}
	for i := range ids {
		if colors[i] == white {
			visit(i)
		}
	}
	sort.Strings(inCycle)
	return dedupeSortedStrings(inCycle)
}

func dedupeSortedStrings(s []string) []string {
	out := s[:0]
	var prev string
	first := true
	for _, v := range s {
		if first || v != prev {
			out = append(out, v)
			prev = v
			first = false
		}
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
