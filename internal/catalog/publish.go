// Package catalog implements the catalog-writer, release-diff, and garbage
// collection tooling operated by atlasctl: everything that mutates or
// compares the published on-disk layout, as distinct from internal/cache
// (which only ever reads it).
package catalog

import (
	"errors"
	"fmt"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/pkg/model"
)

var ErrCatalog = errors.New("catalog: failed")

// Writer appends/upserts CatalogEntry records and emits canonical catalog
// bytes, the only path allowed to mutate catalog.json.
type Writer struct {
	store PutStore
}

// PutStore is the subset of store.LocalStore a Writer needs: synchronous,
// unconditional byte writes. Only the local backend supports catalog
// writes; federated/S3 backends are read-only from this tool's perspective.
type PutStore interface {
	Put(objectKey string, data []byte) error
}

func NewWriter(store PutStore) *Writer {
	return &Writer{store: store}
}

// Publish upserts entry into cat (replacing any existing entry for the same
// dataset), re-sorts, and writes the canonical bytes to catalog.json.
// validate_sorted() is checked as a postcondition: a bug here is treated as
// a hard failure rather than written to disk.
func (w *Writer) Publish(cat model.Catalog, entry model.CatalogEntry) (model.Catalog, error) {
	out := upsert(cat, entry)
	out.SortEntries()
	if !out.ValidateSorted() {
		return model.Catalog{}, fmt.Errorf("%w: catalog failed validate_sorted postcondition", ErrCatalog)
	}
	b, err := out.CanonicalBytes()
	if err != nil {
		return model.Catalog{}, fmt.Errorf("%w: canonical bytes: %v", ErrCatalog, err)
	}
	if err := w.store.Put("catalog.json", b); err != nil {
		return model.Catalog{}, fmt.Errorf("%w: write catalog: %v", ErrCatalog, err)
	}
	return out, nil
}

func upsert(cat model.Catalog, entry model.CatalogEntry) model.Catalog {
	key := entry.Dataset.CanonicalString()
	entries := make([]model.CatalogEntry, 0, len(cat.Entries)+1)
	replaced := false
	for _, e := range cat.Entries {
		if e.Dataset.CanonicalString() == key {
			entries = append(entries, entry)
			replaced = true
			continue
		}
		entries = append(entries, e)
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return model.Catalog{Entries: entries}
}

// EntryFor builds the CatalogEntry a successful ingest run publishes,
// pointing at the dataset's standard manifest/sqlite object keys.
func EntryFor(dataset model.DatasetID) model.CatalogEntry {
	return model.CatalogEntry{
		Dataset:      dataset,
		ManifestPath: artifact.ObjectKey(dataset, artifact.KindManifest),
		SQLitePath:   artifact.ObjectKey(dataset, artifact.KindGeneSummary),
	}
}
