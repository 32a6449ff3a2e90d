// Package ingest implements the deterministic ingest and artifact engine:
// Prepare -> Decode -> Extract -> Normalize -> Persist -> Finalize over a
// GFF3 annotation file, a FASTA sequence file, and a FASTA index (.fai),
// producing byte-stable derived artifacts for one dataset.
package ingest

import (
	"errors"
	"runtime"

	"github.com/bijux/atlas/pkg/model"
)

var ErrIngest = errors.New("ingest: failed")

// TimestampPolicy controls whether any wall-clock value leaks into output.
// DeterministicZero is the only policy the determinism contract allows for
// byte-stable artifacts; SourceMetadataOnly is reserved for debug tooling
// that intentionally records provenance timestamps.
type TimestampPolicy int

const (
	TimestampDeterministicZero TimestampPolicy = iota
	TimestampSourceMetadataOnly
)

// Options configures one ingest run. Mirrors the original engine's
// IngestOptions one field at a time; fields with no bearing on this
// implementation's scope (shard partitioning variants, contig-fraction
// stats) are carried as no-ops where the spec leaves them optional.
type Options struct {
	GFF3Path   string
	FASTAPath  string
	FAIPath    string
	OutputRoot string
	Dataset    model.DatasetID

	Policies Policies

	MaxThreads int

	ComputeGeneSignatures bool

	FASTAScanningEnabled bool
	FASTAScanMaxBases    uint64

	ReportOnly  bool
	FailOnWarn  bool

	DevAllowAutoGenerateFAI bool
	EmitNormalizedDebug     bool
	ProdMode                bool

	TimestampPolicy TimestampPolicy
}

// DefaultOptions returns conservative defaults; callers must still set
// GFF3Path/FASTAPath/FAIPath/OutputRoot/Dataset.
func DefaultOptions() Options {
	return Options{
		Policies:              DefaultPolicies(),
		MaxThreads:            1,
		ComputeGeneSignatures: true,
		FASTAScanningEnabled:  false,
		FASTAScanMaxBases:     2_000_000_000,
		TimestampPolicy:       TimestampDeterministicZero,
	}
}

// ParallelismPolicy clamps a requested thread count to [1, ncpu]. Kept
// separate from Options so it can be unit tested independent of a full
// ingest run.
func ParallelismPolicy(maxThreads int) int {
	n := runtime.NumCPU()
	if maxThreads <= 0 {
		return 1
	}
	if maxThreads > n {
		return n
	}
	return maxThreads
}
