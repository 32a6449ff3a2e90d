package model

import (
	"sort"
	"strings"
)

const (
	IDMaxLen    = 128
	NameMaxLen  = 256
	SeqIDMaxLen = 128
)

// GeneID, TranscriptID are trim-stable, non-empty, bounded-length identifiers.
type GeneID string
type TranscriptID string

func ParseGeneID(input string) (GeneID, error) {
	if err := validateFeatureID("gene_id", input); err != nil {
		return "", err
	}
	return GeneID(input), nil
}

func ParseTranscriptID(input string) (TranscriptID, error) {
	if err := validateFeatureID("transcript_id", input); err != nil {
		return "", err
	}
	return TranscriptID(input), nil
}

func validateFeatureID(field, input string) error {
	if input == "" {
		return newValidationError(field, "must not be empty")
	}
	if strings.TrimSpace(input) != input {
		return newValidationError(field, "must not contain leading/trailing whitespace")
	}
	if len(input) > IDMaxLen {
		return newValidationError(field, "exceeds max length")
	}
	return nil
}

// Gene is a normalized annotation feature record.
type Gene struct {
	GeneID           GeneID
	Name             string // empty means absent
	SeqID            string
	Start            uint64
	End              uint64
	Strand           Strand
	Biotype          string
	TranscriptCount  uint64
	SequenceLength   uint64
	SignatureSHA256  string
	TranscriptIDs    []TranscriptID // sorted, used to derive SignatureSHA256
}

// Transcript is a normalized transcript record, child of a Gene.
type Transcript struct {
	TranscriptID   TranscriptID
	ParentGeneID   GeneID
	Type           string
	Biotype        string
	SeqID          string
	Start          uint64
	End            uint64
	ExonCount      uint64
	TotalExonSpan  uint64
	CDSPresent     bool
}

// GeneOrderKey orders genes by (seqid, start, gene_id), the canonical gene
// list ordering used by the release gene index and by list responses.
type GeneOrderKey struct {
	SeqID  string
	Start  uint64
	GeneID GeneID
}

func (k GeneOrderKey) Less(o GeneOrderKey) bool {
	if k.SeqID != o.SeqID {
		return k.SeqID < o.SeqID
	}
	if k.Start != o.Start {
		return k.Start < o.Start
	}
	return k.GeneID < o.GeneID
}

// TranscriptOrderKey orders transcripts by (seqid, start, transcript_id).
type TranscriptOrderKey struct {
	SeqID        string
	Start        uint64
	TranscriptID TranscriptID
}

func (k TranscriptOrderKey) Less(o TranscriptOrderKey) bool {
	if k.SeqID != o.SeqID {
		return k.SeqID < o.SeqID
	}
	if k.Start != o.Start {
		return k.Start < o.Start
	}
	return k.TranscriptID < o.TranscriptID
}

// SortGenes sorts in place by GeneOrderKey, the reduce-then-sort discipline
// required for deterministic ingest output regardless of worker thread count.
func SortGenes(genes []Gene) {
	sort.Slice(genes, func(i, j int) bool {
		return orderKeyOf(genes[i]).Less(orderKeyOf(genes[j]))
	})
}

func orderKeyOf(g Gene) GeneOrderKey {
	return GeneOrderKey{SeqID: g.SeqID, Start: g.Start, GeneID: g.GeneID}
}

// GeneNamePolicy resolves a gene's display name from GFF3 attributes, trying
// keys in order and taking the first non-empty, whitespace-collapsed value.
type GeneNamePolicy struct {
	AttributeKeys []string
}

func DefaultGeneNamePolicy() GeneNamePolicy {
	return GeneNamePolicy{AttributeKeys: []string{"gene_name", "Name", "gene", "description"}}
}

func (p GeneNamePolicy) Resolve(attrs map[string]string, fallback string) string {
	for _, key := range p.AttributeKeys {
		if v, ok := attrs[key]; ok {
			collapsed := collapseWhitespace(v)
			if collapsed != "" {
				return collapsed
			}
		}
	}
	return fallback
}

// BiotypePolicy resolves a feature's biotype from GFF3 attributes, falling
// back to a configurable "unknown" literal.
type BiotypePolicy struct {
	AttributeKeys []string
	UnknownValue  string
}

func DefaultBiotypePolicy() BiotypePolicy {
	return BiotypePolicy{
		AttributeKeys: []string{"gene_biotype", "biotype", "gene_type"},
		UnknownValue:  "unknown",
	}
}

func (p BiotypePolicy) Resolve(attrs map[string]string) string {
	for _, key := range p.AttributeKeys {
		if v, ok := attrs[key]; ok {
			collapsed := collapseWhitespace(v)
			if collapsed != "" {
				return collapsed
			}
		}
	}
	if p.UnknownValue != "" {
		return p.UnknownValue
	}
	return "unknown"
}

// TranscriptTypePolicy decides which GFF3 feature "type" values count as
// transcripts.
type TranscriptTypePolicy struct {
	AcceptedTypes map[string]struct{}
}

func DefaultTranscriptTypePolicy() TranscriptTypePolicy {
	return TranscriptTypePolicy{AcceptedTypes: toSet("transcript", "mRNA", "mrna")}
}

func (p TranscriptTypePolicy) Accepts(featureType string) bool {
	_, ok := p.AcceptedTypes[featureType]
	return ok
}

// TranscriptIDPolicy resolves a transcript's identifier from attributes.
type TranscriptIDPolicy struct {
	AttributeKeys []string
}

func DefaultTranscriptIDPolicy() TranscriptIDPolicy {
	return TranscriptIDPolicy{AttributeKeys: []string{"ID", "transcript_id", "transcriptId"}}
}

func (p TranscriptIDPolicy) Resolve(attrs map[string]string) (string, bool) {
	for _, key := range p.AttributeKeys {
		if v, ok := attrs[key]; ok {
			trimmed := strings.TrimSpace(v)
			if trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

// SeqidNormalizationPolicy applies a literal alias map after trimming.
type SeqidNormalizationPolicy struct {
	Aliases map[string]string
}

func (p SeqidNormalizationPolicy) Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if mapped, ok := p.Aliases[trimmed]; ok {
		return mapped
	}
	return trimmed
}

// UnknownFeaturePolicy governs how unrecognized GFF3 feature types are
// handled during normalization.
type UnknownFeaturePolicy int

const (
	UnknownFeatureIgnoreWithWarning UnknownFeaturePolicy = iota
	UnknownFeatureReject
)

// DuplicateGeneIDPolicy governs duplicate gene_id handling.
type DuplicateGeneIDPolicy int

const (
	DuplicateGeneIDFail DuplicateGeneIDPolicy = iota
	DuplicateGeneIDDedupeKeepLexicographicallySmallest
)

// DuplicateTranscriptIDPolicy governs duplicate transcript_id handling.
type DuplicateTranscriptIDPolicy int

const (
	DuplicateTranscriptIDReject DuplicateTranscriptIDPolicy = iota
	DuplicateTranscriptIDDedupeKeepLexicographicallySmallest
)

// FeatureIDUniquenessPolicy governs cross-feature-type id collisions.
type FeatureIDUniquenessPolicy int

const (
	FeatureIDUniquenessReject FeatureIDUniquenessPolicy = iota
	FeatureIDUniquenessNamespaceByFeatureType
	FeatureIDUniquenessNormalizeAsciiLowercaseReject
)

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func toSet(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
