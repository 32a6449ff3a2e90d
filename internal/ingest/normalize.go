package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/bijux/atlas/pkg/model"
)

// normalized is the fully policy-applied feature set ready for
// persistence: sorted, duplicate-free, with every derived field computed.
type normalized struct {
	Genes       []model.Gene
	Transcripts []model.Transcript
	Anomaly     *model.AnomalyReport
	Contigs     []string
}

// normalizeFeatures applies every configured policy to the raw extracted
// feature graph: seqid aliasing, gene/transcript id resolution and
// dedupe, name/biotype attribute-key resolution, and (optionally)
// per-gene signature_sha256. All ordering is reduce-then-sort: policy
// application may run in any order internally, but genes/transcripts are
// always returned sorted by their canonical order key regardless.
func normalizeFeatures(ex *extracted, policies Policies, computeSignatures bool) (*normalized, error) {
	geneByID := make(map[string]rawFeature, len(ex.Genes))
	var geneIDOrder []string
	for _, g := range ex.Genes {
		seqid := policies.Seqid.Normalize(g.SeqID)
		g.SeqID = seqid
		if existing, dup := geneByID[g.ID]; dup {
			ex.Anomaly.add(catDuplicateGeneIDs, g.ID)
			switch policies.DuplicateGeneID {
			case model.DuplicateGeneIDFail:
				return nil, fmt.Errorf("%w: duplicate gene_id %q", ErrIngest, g.ID)
			default:
				if lessFeature(g, existing) {
					geneByID[g.ID] = g
				}
				continue
			}
		}
		geneByID[g.ID] = g
		geneIDOrder = append(geneIDOrder, g.ID)
	}

	transcriptByID := make(map[string]rawFeature, len(ex.Transcripts))
	var transcriptIDOrder []string
	for _, t := range ex.Transcripts {
		t.SeqID = policies.Seqid.Normalize(t.SeqID)
		if _, dup := transcriptByID[t.ID]; dup {
			switch policies.DuplicateTranscriptID {
			case model.DuplicateTranscriptIDReject:
				return nil, fmt.Errorf("%w: duplicate transcript_id %q", ErrIngest, t.ID)
			default:
				continue
			}
		}
		transcriptByID[t.ID] = t
		transcriptIDOrder = append(transcriptIDOrder, t.ID)
	}

	if policies.FeatureIDUniqueness != model.FeatureIDUniquenessNamespaceByFeatureType {
		for id := range geneByID {
			if _, collide := transcriptByID[id]; collide {
				ex.Anomaly.add(catOverlappingIDs, id)
				if policies.FeatureIDUniqueness == model.FeatureIDUniquenessReject {
					return nil, fmt.Errorf("%w: id %q used by both a gene and a transcript", ErrIngest, id)
				}
			}
		}
	}

	transcriptsByGene := make(map[string][]string)
	for _, tid := range transcriptIDOrder {
		t := transcriptByID[tid]
		for _, p := range splitParents(t.Parent) {
			if _, ok := geneByID[p]; ok {
				transcriptsByGene[p] = append(transcriptsByGene[p], tid)
			}
		}
	}

	genes := make([]model.Gene, 0, len(geneIDOrder))
	seenCoords := make(map[string]string)
	for _, gid := range geneIDOrder {
		raw := geneByID[gid]
		txIDs := append([]string(nil), transcriptsByGene[gid]...)
		sort.Strings(txIDs)

		geneID, err := model.ParseGeneID(gid)
		if err != nil {
			return nil, fmt.Errorf("%w: gene_id %q: %v", ErrIngest, gid, err)
		}
		name := policies.GeneName.Resolve(raw.Attributes, "")
		biotype := policies.Biotype.Resolve(raw.Attributes)

		coordKey := fmt.Sprintf("%s:%d-%d", raw.SeqID, raw.Start, raw.End)
		if other, ok := seenCoords[coordKey]; ok && other != gid {
			ex.Anomaly.add(catOverlappingAcrossContigs, gid)
			ex.Anomaly.add(catOverlappingAcrossContigs, other)
		}
		seenCoords[coordKey] = gid

		typedTxIDs := make([]model.TranscriptID, 0, len(txIDs))
		for _, id := range txIDs {
			typedTxIDs = append(typedTxIDs, model.TranscriptID(id))
		}

		g := model.Gene{
			GeneID:          geneID,
			Name:            name,
			SeqID:           raw.SeqID,
			Start:           raw.Start,
			End:             raw.End,
			Strand:          raw.Strand,
			Biotype:         biotype,
			TranscriptCount: uint64(len(txIDs)),
			TranscriptIDs:   typedTxIDs,
		}
		if computeSignatures {
			g.SignatureSHA256 = geneSignature(g)
		}
		genes = append(genes, g)
	}

	transcripts := make([]model.Transcript, 0, len(transcriptIDOrder))
	for _, tid := range transcriptIDOrder {
		raw := transcriptByID[tid]
		transcriptID, err := model.ParseTranscriptID(tid)
		if err != nil {
			return nil, fmt.Errorf("%w: transcript_id %q: %v", ErrIngest, tid, err)
		}
		var parentGeneID model.GeneID
		for _, p := range splitParents(raw.Parent) {
			if _, ok := geneByID[p]; ok {
				parentGeneID = model.GeneID(p)
				break
			}
		}
		biotype := policies.Biotype.Resolve(raw.Attributes)
		exons := ex.Exons[tid]
		cds := ex.CDS[tid]

		var totalSpan uint64
		for _, e := range exons {
			totalSpan += e.End - e.Start + 1
		}

		transcripts = append(transcripts, model.Transcript{
			TranscriptID:  transcriptID,
			ParentGeneID:  parentGeneID,
			Type:          raw.Type,
			Biotype:       biotype,
			SeqID:         raw.SeqID,
			Start:         raw.Start,
			End:           raw.End,
			ExonCount:     uint64(len(exons)),
			TotalExonSpan: totalSpan,
			CDSPresent:    len(cds) > 0,
		})
	}

	model.SortGenes(genes)
	sort.Slice(transcripts, func(i, j int) bool {
		return model.TranscriptOrderKey{SeqID: transcripts[i].SeqID, Start: transcripts[i].Start, TranscriptID: transcripts[i].TranscriptID}.Less(
			model.TranscriptOrderKey{SeqID: transcripts[j].SeqID, Start: transcripts[j].Start, TranscriptID: transcripts[j].TranscriptID})
	})

	report := model.NewAnomalyReport()
	report.MissingParents = ex.Anomaly.sorted(catMissingParents)
	report.MissingTranscriptParents = ex.Anomaly.sorted(catMissingTranscriptParents)
	report.MultipleParentTranscripts = ex.Anomaly.sorted(catMultipleParentTranscripts)
	report.UnknownContigs = ex.Anomaly.sorted(catUnknownContigs)
	report.OverlappingIDs = ex.Anomaly.sorted(catOverlappingIDs)
	report.DuplicateGeneIDs = ex.Anomaly.sorted(catDuplicateGeneIDs)
	report.OverlappingGeneIDsAcrossContigs = ex.Anomaly.sorted(catOverlappingAcrossContigs)
	report.OrphanTranscripts = ex.Anomaly.sorted(catOrphanTranscripts)
	report.ParentCycles = ex.Anomaly.sorted(catParentCycles)
	report.AttributeFallbacks = ex.Anomaly.sorted(catAttributeFallbacks)
	report.UnknownFeatureTypes = ex.Anomaly.sorted(catUnknownFeatureTypes)
	report.MissingRequiredFields = ex.Anomaly.sorted(catMissingRequiredFields)
	report.SortAll()

	contigSet := make(map[string]struct{})
	for _, g := range genes {
		contigSet[g.SeqID] = struct{}{}
	}
	contigs := make([]string, 0, len(contigSet))
	for c := range contigSet {
		contigs = append(contigs, c)
	}
	sort.Strings(contigs)

	return &normalized{Genes: genes, Transcripts: transcripts, Anomaly: report, Contigs: contigs}, nil
}

func lessFeature(a, b rawFeature) bool {
	if a.SeqID != b.SeqID {
		return a.SeqID < b.SeqID
	}
	return a.Start < b.Start
}

// geneSignature hashes the canonical record (gene_id, seqid, start, end,
// strand, biotype, sorted transcript_id list).
func geneSignature(g model.Gene) string {
	ids := make([]string, len(g.TranscriptIDs))
	for i, id := range g.TranscriptIDs {
		ids[i] = string(id)
	}
	sort.Strings(ids)
	payload := fmt.Sprintf("%s|%s|%d|%d|%s|%s|%s",
		g.GeneID, g.SeqID, g.Start, g.End, g.Strand, g.Biotype, strings.Join(ids, ","))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// hasQCWarn reports whether any anomaly field is non-empty, the condition
// that triggers fail_on_warn in strict mode.
func hasQCWarn(r *model.AnomalyReport) bool {
	return len(r.MissingParents) > 0 ||
		len(r.MissingTranscriptParents) > 0 ||
		len(r.MultipleParentTranscripts) > 0 ||
		len(r.UnknownContigs) > 0 ||
		len(r.OverlappingIDs) > 0 ||
		len(r.DuplicateGeneIDs) > 0 ||
		len(r.OverlappingGeneIDsAcrossContigs) > 0 ||
		len(r.OrphanTranscripts) > 0 ||
		len(r.ParentCycles) > 0 ||
		len(r.AttributeFallbacks) > 0 ||
		len(r.UnknownFeatureTypes) > 0 ||
		len(r.MissingRequiredFields) > 0
}
