package registry

// Postgres-backed federated catalog source.
//
// Mirrors a federated catalog from a single table of published dataset
// entries. Standard library sql.DB only; the driver (github.com/lib/pq)
// is registered by the caller via a blank import, the same division of
// responsibility as the teacher's relational store.
//
// Schema (created by EnsureSchema):
//   atlas_catalog_entries:
//     dataset_key    TEXT PRIMARY KEY  -- DatasetID.KeyString()
//     dataset_canon  TEXT NOT NULL     -- DatasetID.CanonicalString()
//     manifest_path  TEXT NOT NULL
//     sqlite_path    TEXT NOT NULL
//     updated_at     TIMESTAMPTZ NOT NULL

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
)

var ErrPGInvalid = errors.New("registry: invalid postgres mirror input")

type PGOptions struct {
	TableName string
	Clock     func() time.Time
}

// PGMirror implements store.Backend over a Postgres table of catalog
// entries; it only ever serves catalogs, never artifact bytes directly
// (manifests/sqlite live in the object store the catalog entries point
// to), so the artifact-fetching methods delegate to a wrapped Backend.
type PGMirror struct {
	db    *sql.DB
	table string
	clock func() time.Time
	inner store.Backend
}

func NewPGMirror(db *sql.DB, inner store.Backend, opts PGOptions) (*PGMirror, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db is nil", ErrPGInvalid)
	}
	if inner == nil {
		return nil, fmt.Errorf("%w: inner backend is nil", ErrPGInvalid)
	}
	table := strings.TrimSpace(opts.TableName)
	if table == "" {
		table = "atlas_catalog_entries"
	}
	if err := validateTableName(table); err != nil {
		return nil, fmt.Errorf("%w: invalid table name", ErrPGInvalid)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PGMirror{db: db, table: table, clock: clock, inner: inner}, nil
}

// EnsureSchema creates the backing table if it does not exist.
func (m *PGMirror) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  dataset_key   TEXT NOT NULL,
  dataset_canon TEXT NOT NULL,
  manifest_path TEXT NOT NULL,
  sqlite_path   TEXT NOT NULL,
  updated_at    TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (dataset_key)
);`, m.table)
	if _, err := m.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Publish upserts one catalog entry, keyed by the dataset's stable key
// string.
func (m *PGMirror) Publish(ctx context.Context, entry model.CatalogEntry) error {
	q := fmt.Sprintf(`
INSERT INTO %s (dataset_key, dataset_canon, manifest_path, sqlite_path, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (dataset_key) DO UPDATE SET
  dataset_canon = EXCLUDED.dataset_canon,
  manifest_path = EXCLUDED.manifest_path,
  sqlite_path   = EXCLUDED.sqlite_path,
  updated_at    = EXCLUDED.updated_at;`, m.table)
	_, err := m.db.ExecContext(ctx, q,
		entry.Dataset.KeyString(), entry.Dataset.CanonicalString(),
		entry.ManifestPath, entry.SQLitePath, m.clock())
	if err != nil {
		return fmt.Errorf("publish catalog entry: %w", err)
	}
	return nil
}

func (m *PGMirror) loadCatalog(ctx context.Context) (model.Catalog, error) {
	q := fmt.Sprintf(`SELECT dataset_canon, manifest_path, sqlite_path FROM %s ORDER BY dataset_canon;`, m.table)
	rows, err := m.db.QueryContext(ctx, q)
	if err != nil {
		return model.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var cat model.Catalog
	for rows.Next() {
		var canon, manifestPath, sqlitePath string
		if err := rows.Scan(&canon, &manifestPath, &sqlitePath); err != nil {
			return model.Catalog{}, fmt.Errorf("scan catalog row: %w", err)
		}
		ds, err := model.ParseDatasetCanonicalString(canon)
		if err != nil {
			return model.Catalog{}, fmt.Errorf("parse dataset %q: %w", canon, err)
		}
		cat.Entries = append(cat.Entries, model.CatalogEntry{Dataset: ds, ManifestPath: manifestPath, SQLitePath: sqlitePath})
	}
	if err := rows.Err(); err != nil {
		return model.Catalog{}, fmt.Errorf("iterate catalog rows: %w", err)
	}
	cat.SortEntries()
	return cat, nil
}

func (m *PGMirror) FetchCatalog(ctx context.Context, ifNoneMatchETag string) (store.CatalogFetch, error) {
	cat, err := m.loadCatalog(ctx)
	if err != nil {
		return store.CatalogFetch{}, err
	}
	b, err := cat.CanonicalBytes()
	if err != nil {
		return store.CatalogFetch{}, fmt.Errorf("canonicalize catalog: %w", err)
	}
	etag := canonicaljson.SHA256Hex(b)
	if ifNoneMatchETag != "" && ifNoneMatchETag == etag {
		return store.CatalogFetch{Status: store.CatalogNotModified, ETag: etag}, nil
	}
	return store.CatalogFetch{Status: store.CatalogUpdated, ETag: etag, Catalog: cat}, nil
}

func (m *PGMirror) FetchManifest(ctx context.Context, dataset model.DatasetID) (model.Manifest, error) {
	return m.inner.FetchManifest(ctx, dataset)
}

func (m *PGMirror) FetchSQLiteBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return m.inner.FetchSQLiteBytes(ctx, dataset)
}

func (m *PGMirror) FetchFASTABytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return m.inner.FetchFASTABytes(ctx, dataset)
}

func (m *PGMirror) FetchFAIBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return m.inner.FetchFAIBytes(ctx, dataset)
}

func (m *PGMirror) FetchReleaseGeneIndexBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return m.inner.FetchReleaseGeneIndexBytes(ctx, dataset)
}

func (m *PGMirror) Get(ctx context.Context, objectKey string) ([]byte, error) {
	return m.inner.Get(ctx, objectKey)
}

func (m *PGMirror) Head(ctx context.Context, objectKey string) (int64, error) {
	return m.inner.Head(ctx, objectKey)
}

func (m *PGMirror) RegistryHealth(ctx context.Context) []store.SourceHealth {
	reachable := true
	lastErr := ""
	if err := m.db.PingContext(ctx); err != nil {
		reachable = false
		lastErr = err.Error()
	}
	return []store.SourceHealth{{Name: "postgres:" + m.table, Reachable: reachable, LastError: lastErr}}
}

func (m *PGMirror) BackendTag() string { return "postgres" }

// validateTableName is a conservative check to prevent SQL injection when
// interpolating the table name into DDL/DML via fmt.Sprintf.
func validateTableName(name string) error {
	if name == "" {
		return ErrPGInvalid
	}
	for i, r := range name {
		if i == 0 {
			if !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
				return ErrPGInvalid
			}
			continue
		}
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			continue
		}
		return ErrPGInvalid
	}
	return nil
}
