package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
)

// Result is everything an ingest run produces: on-disk artifact paths,
// the manifest and anomaly report content, and the full event log.
type Result struct {
	ManifestPath          string
	SQLitePath            string
	AnomalyReportPath     string
	QCReportPath          string
	ReleaseGeneIndexPath  string
	NormalizedDebugPath   string

	Manifest      model.Manifest
	AnomalyReport model.AnomalyReport
	QCReport      QCReport
	Events        []Event
}

func hashFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrIngest, path, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// writeOutputs persists every derived artifact under
// OutputRoot/dataset.DerivedDir(), returning the populated Result.
func writeOutputs(ctx context.Context, opts Options, n *normalized, gffHash, fastaHash, faiHash string) (Result, error) {
	dir := filepath.Join(opts.OutputRoot, filepath.FromSlash(opts.Dataset.DerivedDir()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("%w: mkdir derived dir: %v", ErrIngest, err)
	}

	sqlitePath := filepath.Join(dir, string(artifact.KindGeneSummary))
	if err := writeGeneSummarySQLite(ctx, sqlitePath, n); err != nil {
		return Result{}, err
	}
	sqliteHash, err := hashFile(sqlitePath)
	if err != nil {
		return Result{}, err
	}

	geneIndex := model.GeneIndex{}
	for _, g := range n.Genes {
		geneIndex.Entries = append(geneIndex.Entries, model.GeneIndexEntry{
			GeneID:          string(g.GeneID),
			SeqID:           g.SeqID,
			Start:           g.Start,
			End:             g.End,
			SignatureSHA256: g.SignatureSHA256,
		})
	}
	geneIndex.Sort()
	geneIndexPath := filepath.Join(dir, string(artifact.KindReleaseGeneIndex))
	if err := writeCanonicalJSON(geneIndexPath, geneIndex); err != nil {
		return Result{}, err
	}

	anomalyPath := filepath.Join(dir, string(artifact.KindAnomalyReport))
	if err := writeCanonicalJSON(anomalyPath, n.Anomaly); err != nil {
		return Result{}, err
	}

	qc := buildQCReport(n.Anomaly)
	qcPath := filepath.Join(dir, string(artifact.KindQCReport))
	if err := writeCanonicalJSON(qcPath, qc); err != nil {
		return Result{}, err
	}

	manifest := model.Manifest{
		SchemaVersion:   model.ManifestSchemaVersion,
		DBSchemaVersion: model.DBSchemaVersion,
		Dataset:         opts.Dataset,
		Checksums: model.Checksums{
			GFFSHA256:    gffHash,
			FASTASHA256:  fastaHash,
			FAISHA256:    faiHash,
			SQLiteSHA256: sqliteHash,
		},
		Stats: model.Stats{
			GeneCount:       uint64(len(n.Genes)),
			TranscriptCount: uint64(len(n.Transcripts)),
			ContigCount:     uint64(len(n.Contigs)),
		},
	}
	if err := manifest.ComputeHash(); err != nil {
		return Result{}, fmt.Errorf("%w: compute manifest hash: %v", ErrIngest, err)
	}
	manifestPath := filepath.Join(dir, string(artifact.KindManifest))
	if err := writeCanonicalJSON(manifestPath, manifest); err != nil {
		return Result{}, err
	}

	result := Result{
		ManifestPath:         manifestPath,
		SQLitePath:           sqlitePath,
		AnomalyReportPath:    anomalyPath,
		QCReportPath:         qcPath,
		ReleaseGeneIndexPath: geneIndexPath,
		Manifest:             manifest,
		AnomalyReport:        *n.Anomaly,
		QCReport:             qc,
	}

	if opts.EmitNormalizedDebug {
		debugPath := filepath.Join(dir, string(artifact.KindNormalizedDebug))
		if err := writeCanonicalJSON(debugPath, struct {
			Genes       []model.Gene       `json:"genes"`
			Transcripts []model.Transcript `json:"transcripts"`
		}{n.Genes, n.Transcripts}); err != nil {
			return Result{}, err
		}
		result.NormalizedDebugPath = debugPath
	}

	return result, nil
}

func writeCanonicalJSON(path string, v any) error {
	b, err := canonicaljson.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: canonicalize %s: %v", ErrIngest, path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIngest, path, err)
	}
	return nil
}

