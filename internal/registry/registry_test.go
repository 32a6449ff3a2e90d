package registry

import (
	"context"
	"testing"

	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/model"
)

func ds(t *testing.T, release, species, assembly string) model.DatasetID {
	t.Helper()
	d, err := model.NewDatasetID(release, species, assembly)
	if err != nil {
		t.Fatalf("NewDatasetID(%s,%s,%s): %v", release, species, assembly, err)
	}
	return d
}

func localWithCatalog(t *testing.T, entries []model.CatalogEntry) *store.LocalStore {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewLocalStore(store.LocalOptions{Root: dir})
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	cat := model.Catalog{Entries: entries}
	cat.SortEntries()
	b, err := cat.CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	if err := s.Put("catalog.json", b); err != nil {
		t.Fatalf("Put catalog: %v", err)
	}
	return s
}

func TestFederatedMergePriorityAndShadowing(t *testing.T) {
	dsA := ds(t, "110", "homo_sapiens", "GRCh38")
	dsB := ds(t, "111", "mus_musculus", "GRCm39")

	first := localWithCatalog(t, []model.CatalogEntry{
		{Dataset: dsA, ManifestPath: dsA.DerivedDir() + "/manifest.json"},
	})
	second := localWithCatalog(t, []model.CatalogEntry{
		{Dataset: dsA, ManifestPath: dsA.DerivedDir() + "/manifest.json"},
		{Dataset: dsB, ManifestPath: dsB.DerivedDir() + "/manifest.json"},
	})

	fb, err := NewFederatedBackend([]RegistrySource{
		{Name: "primary", Store: first, Priority: 0},
		{Name: "secondary", Store: second, Priority: 1},
	})
	if err != nil {
		t.Fatalf("NewFederatedBackend: %v", err)
	}

	fetch, err := fb.FetchCatalog(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(fetch.Catalog.Entries) != 2 {
		t.Fatalf("expected 2 merged entries, got %d", len(fetch.Catalog.Entries))
	}

	health := fb.Health()
	if len(health) != 2 {
		t.Fatalf("expected 2 health entries, got %d", len(health))
	}
	if health[1].ShadowedDatasets != 1 {
		t.Fatalf("expected secondary source to have shadowed 1 dataset, got %d", health[1].ShadowedDatasets)
	}
	if health[0].ShadowedDatasets != 0 {
		t.Fatalf("expected primary source to have shadowed 0 datasets, got %d", health[0].ShadowedDatasets)
	}
}

func TestFederatedSignatureMismatchDropsSource(t *testing.T) {
	dsA := ds(t, "110", "homo_sapiens", "GRCh38")
	good := localWithCatalog(t, []model.CatalogEntry{
		{Dataset: dsA, ManifestPath: dsA.DerivedDir() + "/manifest.json"},
	})
	bad := localWithCatalog(t, []model.CatalogEntry{
		{Dataset: dsA, ManifestPath: "/tampered/manifest.json"},
	})

	fb, err := NewFederatedBackend([]RegistrySource{
		{Name: "good", Store: good, Priority: 0},
		{Name: "bad", Store: bad, Priority: 1, ExpectedCatalogSignature: "deadbeef"},
	})
	if err != nil {
		t.Fatalf("NewFederatedBackend: %v", err)
	}

	fetch, err := fb.FetchCatalog(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(fetch.Catalog.Entries) != 1 || fetch.Catalog.Entries[0].ManifestPath != dsA.DerivedDir()+"/manifest.json" {
		t.Fatalf("expected only the trusted source's entry, got %+v", fetch.Catalog.Entries)
	}

	health := fb.Health()
	var badHealth *SourceHealth
	for i := range health {
		if health[i].Name == "bad" {
			badHealth = &health[i]
		}
	}
	if badHealth == nil {
		t.Fatalf("expected a health entry for 'bad' source")
	}
	if badHealth.Healthy {
		t.Fatalf("expected bad source to report unhealthy")
	}
	if badHealth.LastError != "signature mismatch" {
		t.Fatalf("expected signature mismatch error, got %q", badHealth.LastError)
	}
}

func TestFederatedFetchManifestFallsBackOnFailure(t *testing.T) {
	dsA := ds(t, "110", "homo_sapiens", "GRCh38")
	failing := localWithCatalog(t, nil)
	working, err := store.NewLocalStore(store.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	fb, err := NewFederatedBackend([]RegistrySource{
		{Name: "A", Store: failing, Priority: 0},
		{Name: "B", Store: working, Priority: 1},
	})
	if err != nil {
		t.Fatalf("NewFederatedBackend: %v", err)
	}

	if _, err := fb.FetchManifest(context.Background(), dsA); err == nil {
		t.Fatalf("expected both sources to fail for an unseeded dataset")
	}
}

func TestNewFederatedBackendRequiresSources(t *testing.T) {
	if _, err := NewFederatedBackend(nil); err != ErrNoSources {
		t.Fatalf("expected ErrNoSources, got %v", err)
	}
}

func TestValidateTableNameRejectsInjection(t *testing.T) {
	if err := validateTableName("atlas_catalog_entries"); err != nil {
		t.Fatalf("expected valid table name to pass: %v", err)
	}
	if err := validateTableName("atlas; DROP TABLE x"); err == nil {
		t.Fatalf("expected invalid table name to be rejected")
	}
}
