package ingest

import "github.com/bijux/atlas/pkg/model"

// Policies bundles every configurable normalization policy the ingest
// engine consults, grounded on the per-policy defaults pkg/model.Gene
// already defines, plus the identifier/duplicate/uniqueness policies that
// have no single natural home in pkg/model because they govern ingest
// control flow rather than a record shape.
type Policies struct {
	UnknownFeature         model.UnknownFeaturePolicy
	DuplicateGeneID        model.DuplicateGeneIDPolicy
	DuplicateTranscriptID  model.DuplicateTranscriptIDPolicy
	FeatureIDUniqueness    model.FeatureIDUniquenessPolicy
	GeneName               model.GeneNamePolicy
	Biotype                model.BiotypePolicy
	TranscriptType         model.TranscriptTypePolicy
	TranscriptID           model.TranscriptIDPolicy
	Seqid                  model.SeqidNormalizationPolicy

	RejectNormalizedSeqidCollisions bool
}

// DefaultPolicies mirrors the original engine's IngestOptions::default():
// reject-by-default duplicate and uniqueness handling, warn-don't-fail on
// unknown feature types, and the attribute-key orderings recorded in
// SPEC_FULL's policy defaults table.
func DefaultPolicies() Policies {
	return Policies{
		UnknownFeature:                   model.UnknownFeatureIgnoreWithWarning,
		DuplicateGeneID:                  model.DuplicateGeneIDFail,
		DuplicateTranscriptID:            model.DuplicateTranscriptIDReject,
		FeatureIDUniqueness:              model.FeatureIDUniquenessReject,
		GeneName:                         model.DefaultGeneNamePolicy(),
		Biotype:                         model.DefaultBiotypePolicy(),
		TranscriptType:                   model.DefaultTranscriptTypePolicy(),
		TranscriptID:                     model.DefaultTranscriptIDPolicy(),
		Seqid:                            model.SeqidNormalizationPolicy{Aliases: map[string]string{}},
		RejectNormalizedSeqidCollisions:  true,
	}
}
