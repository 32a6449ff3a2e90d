package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/bijux/atlas/pkg/model"
)

// Run executes the full Prepare -> Decode -> Extract -> Normalize ->
// Persist -> Finalize pipeline for one dataset and returns its Result
// plus the accumulated event log. For a fixed (inputs, Options) with
// TimestampDeterministicZero, every output byte is identical across
// hosts and runs: all ordered outputs are produced by reduce-then-sort
// rather than by observation order, so MaxThreads never affects output
// bytes (this implementation does not itself parallelize decode/extract,
// but preserves the same determinism contract should it later do so).
func Run(ctx context.Context, opts Options) (Result, error) {
	var log Log
	log.Emit(StagePrepare, "ingest.start", nil)

	if isUnknownDefaultDataset(opts.Dataset) {
		return Result{}, fmt.Errorf("%w: dataset identity is required; implicit default dataset is forbidden", ErrIngest)
	}
	effectiveThreads := ParallelismPolicy(opts.MaxThreads)
	log.Emit(StagePrepare, "ingest.parallelism", map[string]any{"effective_threads": effectiveThreads})

	if opts.ProdMode && opts.EmitNormalizedDebug {
		return Result{}, fmt.Errorf("%w: policy gate: normalized debug output is disabled in production mode", ErrIngest)
	}

	log.Emit(StageDecode, "ingest.decode.begin", nil)
	gffBytes, err := os.ReadFile(opts.GFF3Path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read gff3: %v", ErrIngest, err)
	}
	fastaBytes, err := os.ReadFile(opts.FASTAPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read fasta: %v", ErrIngest, err)
	}

	var contigs ContigLengths
	var faiBytes []byte
	if opts.FAIPath != "" {
		faiBytes, err = os.ReadFile(opts.FAIPath)
		if err != nil {
			return Result{}, fmt.Errorf("%w: read fai: %v", ErrIngest, err)
		}
		contigs, err = readFAIContigLengths(bytes.NewReader(faiBytes))
		if err != nil {
			return Result{}, err
		}
	} else {
		if !opts.DevAllowAutoGenerateFAI {
			return Result{}, fmt.Errorf("%w: fai is required unless dev_allow_auto_generate_fai is set", ErrIngest)
		}
		var complete bool
		contigs, complete, err = synthesizeFAIFromFASTA(bytes.NewReader(fastaBytes), opts.FASTAScanMaxBases)
		if err != nil {
			return Result{}, err
		}
		if !complete {
			log.Emit(StageDecode, "ingest.fasta_scan.stage_skipped", map[string]any{
				"reason": "fasta_scan_max_bases exceeded",
			})
		}
		faiBytes = nil
	}

	rows, err := decodeGFF3(bytes.NewReader(gffBytes))
	if err != nil {
		return Result{}, err
	}
	log.Emit(StageDecode, "ingest.decode.complete", map[string]any{"feature_count": len(rows)})

	log.Emit(StageExtract, "ingest.extract.begin", nil)
	ex, err := extractFeatures(rows, opts.Policies, contigs)
	if err != nil {
		return Result{}, err
	}
	log.Emit(StageExtract, "ingest.extract.complete", map[string]any{
		"gene_count":       len(ex.Genes),
		"transcript_count": len(ex.Transcripts),
	})

	log.Emit(StageNormalize, "ingest.normalize.begin", nil)
	n, err := normalizeFeatures(ex, opts.Policies, opts.ComputeGeneSignatures)
	if err != nil {
		return Result{}, err
	}
	log.Emit(StageNormalize, "ingest.normalize.complete", nil)

	if opts.FailOnWarn && hasQCWarn(n.Anomaly) {
		return Result{}, fmt.Errorf("%w: strict warning policy rejected ingest: QC WARN present", ErrIngest)
	}

	if opts.ReportOnly {
		log.Emit(StageFinalize, "ingest.report_only.skip_persist", nil)
		return Result{
			AnomalyReport: *n.Anomaly,
			QCReport:      buildQCReport(n.Anomaly),
			Events:        log.Events(),
		}, nil
	}

	gffHash := sha256Hex(gffBytes)
	fastaHash := sha256Hex(fastaBytes)
	faiHash := sha256Hex(faiBytes)

	log.Emit(StagePersist, "ingest.persist.begin", nil)
	result, err := writeOutputs(ctx, opts, n, gffHash, fastaHash, faiHash)
	if err != nil {
		return Result{}, err
	}
	log.Emit(StageFinalize, "ingest.persist.complete", nil)

	result.Events = log.Events()
	return result, nil
}

func isUnknownDefaultDataset(d model.DatasetID) bool {
	return string(d.Release) == "0" && string(d.Species) == "unknown" && string(d.Assembly) == "unknown"
}
