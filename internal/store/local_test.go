package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/bijux/atlas/pkg/model"
)

func TestLocalStoreGetHeadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(LocalOptions{Root: dir})
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if err := s.Put("release=110/species=homo_sapiens/assembly=GRCh38/derived/manifest.json", []byte(`{"schema_version":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	n, err := s.Head(context.Background(), "release=110/species=homo_sapiens/assembly=GRCh38/derived/manifest.json")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected non-zero size")
	}
	b, err := s.Get(context.Background(), "release=110/species=homo_sapiens/assembly=GRCh38/derived/manifest.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(b) == 0 {
		t.Fatalf("expected non-empty bytes")
	}
}

func TestLocalStoreRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(LocalOptions{Root: dir})
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := s.Get(context.Background(), "../../etc/passwd"); err == nil {
		t.Fatalf("expected path escape to be rejected")
	}
}

func TestLocalStoreFetchCatalogEmptyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(LocalOptions{Root: dir})
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	fetch, err := s.FetchCatalog(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if fetch.Status != CatalogUpdated {
		t.Fatalf("expected CatalogUpdated for a fresh root, got %v", fetch.Status)
	}
	if len(fetch.Catalog.Entries) != 0 {
		t.Fatalf("expected empty catalog, got %+v", fetch.Catalog)
	}
}

func TestLocalStoreFetchCatalogNotModified(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(LocalOptions{Root: dir})
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ds, err := model.NewDatasetID("110", "homo_sapiens", "GRCh38")
	if err != nil {
		t.Fatalf("NewDatasetID: %v", err)
	}
	cat := model.Catalog{Entries: []model.CatalogEntry{{Dataset: ds, ManifestPath: filepath.Join(ds.DerivedDir(), "manifest.json")}}}
	b, err := json.Marshal(cat)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := s.Put(catalogObjectKey, b); err != nil {
		t.Fatalf("Put catalog: %v", err)
	}
	first, err := s.FetchCatalog(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if first.Status != CatalogUpdated {
		t.Fatalf("expected updated on first fetch")
	}
	second, err := s.FetchCatalog(context.Background(), first.ETag)
	if err != nil {
		t.Fatalf("FetchCatalog second: %v", err)
	}
	if second.Status != CatalogNotModified {
		t.Fatalf("expected not-modified on matching etag")
	}
}
