// Package artifact provides a content-verified orchestration layer over a
// pluggable byte store, addressing the fixed set of derived artifacts a
// published dataset carries (manifest, gene summary database, release gene
// index, anomaly report, QC report, and the optional shard catalog /
// normalized debug dump).
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/bijux/atlas/pkg/model"
)

var (
	ErrArtifact         = errors.New("artifact failed")
	ErrArtifactInvalid  = errors.New("artifact invalid")
	ErrArtifactTooLarge = errors.New("artifact too large")
	ErrArtifactChecksum = errors.New("artifact checksum mismatch")
	ErrArtifactStore    = errors.New("artifact store error")
)

// Kind enumerates the fixed derived-artifact files under a dataset's
// derived/ directory, per the on-disk layout in the external interfaces.
type Kind string

const (
	KindManifest         Kind = "manifest.json"
	KindGeneSummary      Kind = "gene_summary.sqlite"
	KindReleaseGeneIndex Kind = "release_gene_index.json"
	KindAnomalyReport    Kind = "anomaly.json"
	KindQCReport         Kind = "qc.json"
	KindShardCatalog     Kind = "shard_catalog.json"
	KindNormalizedDebug  Kind = "normalized.debug.json"
)

// Store is the minimal byte-addressable backend a Manager orchestrates.
// Implementations (local filesystem, S3) live in internal/store; this
// package depends only on the interface so it has no knowledge of the
// backing transport.
type Store interface {
	Get(ctx context.Context, objectKey string) (data []byte, err error)
	Head(ctx context.Context, objectKey string) (bytes int64, err error)
}

// ManagerOptions bounds the Manager's behavior.
type ManagerOptions struct {
	// MaxBytes caps any single fetched artifact; NewManager replaces zero or
	// a negative value with a 2 GiB default.
	MaxBytes int64
}

// Ref describes one fetched artifact: its resolved object key, size, and
// content hash, ready to compare against a manifest-recorded checksum.
type Ref struct {
	Dataset   model.DatasetID
	Kind      Kind
	ObjectKey string
	Bytes     int64
	SHA256    string
}

// Manager resolves dataset-scoped object keys deterministically and
// fetches/verifies the bytes behind them.
type Manager struct {
	store Store
	opts  ManagerOptions
}

func NewManager(store Store, opts ManagerOptions) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is nil", ErrArtifactInvalid)
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 2 * 1024 * 1024 * 1024
	}
	return &Manager{store: store, opts: opts}, nil
}

// ObjectKey returns the deterministic path for a dataset/kind pair:
// release=R/species=S/assembly=A/derived/<kind file>.
func ObjectKey(dataset model.DatasetID, kind Kind) string {
	return dataset.DerivedDir() + "/" + string(kind)
}

// Fetch retrieves the bytes for dataset/kind, computes their SHA-256, and
// returns both the bytes and a Ref describing them. When wantSHA256 is
// non-empty, a mismatch returns ErrArtifactChecksum without truncating the
// returned data, so callers that want to quarantine-on-mismatch still have
// the bytes to inspect/log.
func (m *Manager) Fetch(ctx context.Context, dataset model.DatasetID, kind Kind, wantSHA256 string) (Ref, []byte, error) {
	key := ObjectKey(dataset, kind)

	if m.opts.MaxBytes > 0 {
		if sz, err := m.store.Head(ctx, key); err == nil && sz > m.opts.MaxBytes {
			return Ref{}, nil, fmt.Errorf("%w: %s is %d bytes, max %d", ErrArtifactTooLarge, key, sz, m.opts.MaxBytes)
		}
	}

	data, err := m.store.Get(ctx, key)
	if err != nil {
		return Ref{}, nil, fmt.Errorf("%w: %w: %s: %v", ErrArtifact, ErrArtifactStore, key, err)
	}
	if data == nil {
		data = []byte{}
	}

	sum := sha256.Sum256(data)
	shaHex := hex.EncodeToString(sum[:])

	ref := Ref{Dataset: dataset, Kind: kind, ObjectKey: key, Bytes: int64(len(data)), SHA256: shaHex}

	if wantSHA256 != "" && wantSHA256 != shaHex {
		return ref, data, fmt.Errorf("%w: %s: want %s, got %s", ErrArtifactChecksum, key, wantSHA256, shaHex)
	}
	return ref, data, nil
}

// Head returns the size of a dataset artifact without fetching its bytes.
func (m *Manager) Head(ctx context.Context, dataset model.DatasetID, kind Kind) (int64, error) {
	key := ObjectKey(dataset, kind)
	sz, err := m.store.Head(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %w: %s: %v", ErrArtifact, ErrArtifactStore, key, err)
	}
	return sz, nil
}
