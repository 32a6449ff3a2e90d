package query

// Class is the coarse cost bucket a request is admitted under. The policy
// engine holds one bulkhead per class.
type Class string

const (
	ClassCheap  Class = "cheap"
	ClassMedium Class = "medium"
	ClassHeavy  Class = "heavy"
)

// heavyRangeSpan is the span (100 kb) above which a region/range query is
// promoted to heavy regardless of which other filters are present.
const heavyRangeSpan = 100_000

// mediumRangeSpan is the span (1000 bases, a point region) above which a
// plain range lookup stops being cheap.
const mediumRangeSpan = 1_000

// Classify assigns a cost class to a parsed, already-validated request.
// Single-gene/single-transcript lookups by exact ID and sequence/diff
// regions of at most 1000 bases are cheap; bounded list queries and regions
// up to 100 kb are medium; open-ended scans and ranges over 100 kb are
// heavy.
func Classify(p Params, op Operation) Class {
	switch op {
	case OpSequenceRegion, OpDiffRegion:
		if p.Range == nil {
			return ClassHeavy
		}
		switch {
		case p.Range.Span() > heavyRangeSpan:
			return ClassHeavy
		case p.Range.Span() > mediumRangeSpan:
			return ClassMedium
		default:
			return ClassCheap
		}
	case OpGeneByID, OpTranscriptByID, OpGeneSequence:
		return ClassCheap
	case OpGeneCount:
		if p.NameLike != "" {
			return ClassMedium
		}
		return ClassCheap
	case OpListGenes, OpListTranscripts, OpDiffGenes:
		switch {
		case p.Range != nil && p.Range.Span() > heavyRangeSpan:
			return ClassHeavy
		case p.NameLike != "" || p.Limit > 200:
			return ClassMedium
		case p.GeneID != "" || (p.Name != "" && p.Contig == ""):
			return ClassCheap
		default:
			return ClassMedium
		}
	default:
		return ClassMedium
	}
}

// Operation names the logical request shape being classified, independent
// of the HTTP route it arrived on.
type Operation string

const (
	OpListGenes       Operation = "list_genes"
	OpGeneByID        Operation = "gene_by_id"
	OpGeneCount       Operation = "gene_count"
	OpGeneSequence    Operation = "gene_sequence"
	OpListTranscripts Operation = "list_transcripts"
	OpTranscriptByID  Operation = "transcript_by_id"
	OpSequenceRegion  Operation = "sequence_region"
	OpDiffGenes       Operation = "diff_genes"
	OpDiffRegion      Operation = "diff_region"
)
