package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/model"
)

func testDataset(t *testing.T) model.DatasetID {
	t.Helper()
	ds, err := model.NewDatasetID("110", "homo_sapiens", "GRCh38")
	if err != nil {
		t.Fatalf("NewDatasetID: %v", err)
	}
	return ds
}

func seedManifest(t *testing.T, s *store.LocalStore, ds model.DatasetID) model.Manifest {
	t.Helper()
	sqliteBytes := []byte("sqlite-bytes")
	sum := sha256.Sum256(sqliteBytes)
	m := model.Manifest{
		SchemaVersion:   model.ManifestSchemaVersion,
		DBSchemaVersion: model.DBSchemaVersion,
		Dataset:         ds,
		Checksums:       model.Checksums{SQLiteSHA256: hex.EncodeToString(sum[:])},
		Stats:           model.Stats{GeneCount: 1, TranscriptCount: 1, ContigCount: 1},
	}
	m.ComputeHash()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := s.Put(artifact.ObjectKey(ds, artifact.KindManifest), b); err != nil {
		t.Fatalf("put manifest: %v", err)
	}
	if err := s.Put(artifact.ObjectKey(ds, artifact.KindGeneSummary), sqliteBytes); err != nil {
		t.Fatalf("put sqlite: %v", err)
	}
	return m
}

func newTestManager(t *testing.T) (*Manager, *store.LocalStore) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewLocalStore(store.LocalOptions{Root: dir})
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	cfg := DefaultConfig()
	cfg.QuarantineAfterFailures = 2
	m, err := NewManager(cfg, s, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, s
}

func TestEnsureDatasetCachedFetchesAndCaches(t *testing.T) {
	m, s := newTestManager(t)
	ds := testDataset(t)
	seedManifest(t, s, ds)

	ctx := context.Background()
	if err := m.EnsureDatasetCached(ctx, ds); err != nil {
		t.Fatalf("EnsureDatasetCached: %v", err)
	}
	snap, err := m.DatasetHealthSnapshot(ctx, ds)
	if err != nil {
		t.Fatalf("DatasetHealthSnapshot: %v", err)
	}
	if !snap.Cached || !snap.ChecksumVerified {
		t.Fatalf("expected cached+verified snapshot, got %+v", snap)
	}
}

func TestEnsureDatasetCachedMissingManifestFails(t *testing.T) {
	m, _ := newTestManager(t)
	ds := testDataset(t)
	if err := m.EnsureDatasetCached(context.Background(), ds); err == nil {
		t.Fatalf("expected error for missing manifest")
	}
}

func TestQuarantineAfterRepeatedFailures(t *testing.T) {
	m, _ := newTestManager(t)
	ds := testDataset(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = m.EnsureDatasetCached(ctx, ds)
	}
	if err := m.EnsureDatasetCached(ctx, ds); err == nil {
		t.Fatalf("expected quarantine error after repeated failures")
	}
}

func TestStartupWarmupDedupesSortsAndBounds(t *testing.T) {
	m, s := newTestManager(t)
	ds := testDataset(t)
	seedManifest(t, s, ds)
	m.cfg.StartupWarmup = []model.DatasetID{ds, ds}
	m.cfg.StartupWarmupLimit = 1

	if err := m.StartupWarmup(context.Background()); err != nil {
		t.Fatalf("StartupWarmup: %v", err)
	}
	snap, err := m.DatasetHealthSnapshot(context.Background(), ds)
	if err != nil {
		t.Fatalf("DatasetHealthSnapshot: %v", err)
	}
	if !snap.Cached {
		t.Fatalf("expected warmup to cache dataset")
	}
}

func TestRefreshCatalogUpdatedThenNotModified(t *testing.T) {
	m, s := newTestManager(t)
	ds := testDataset(t)
	cat := model.Catalog{Entries: []model.CatalogEntry{{Dataset: ds, ManifestPath: ds.DerivedDir() + "/manifest.json"}}}
	b, err := json.Marshal(cat)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := s.Put("catalog.json", b); err != nil {
		t.Fatalf("put catalog: %v", err)
	}

	ctx := context.Background()
	if err := m.RefreshCatalog(ctx); err != nil {
		t.Fatalf("RefreshCatalog first: %v", err)
	}
	if len(m.CurrentCatalog().Entries) != 1 {
		t.Fatalf("expected one catalog entry")
	}
	if m.CatalogEpoch() == "" {
		t.Fatalf("expected non-empty catalog epoch after update")
	}

	m.catalogMu.Lock()
	m.catalogState.refreshedAt = time.Time{}
	m.catalogMu.Unlock()

	if err := m.RefreshCatalog(ctx); err != nil {
		t.Fatalf("RefreshCatalog second: %v", err)
	}
}

func TestRefreshCatalogSkipsWithinTTL(t *testing.T) {
	m, s := newTestManager(t)
	ds := testDataset(t)
	cat := model.Catalog{Entries: []model.CatalogEntry{{Dataset: ds, ManifestPath: ds.DerivedDir() + "/manifest.json"}}}
	b, _ := json.Marshal(cat)
	if err := s.Put("catalog.json", b); err != nil {
		t.Fatalf("put catalog: %v", err)
	}
	ctx := context.Background()
	if err := m.RefreshCatalog(ctx); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	age1 := m.RegistryRefreshAgeSeconds()
	if err := m.RefreshCatalog(ctx); err != nil {
		t.Fatalf("RefreshCatalog repeat: %v", err)
	}
	age2 := m.RegistryRefreshAgeSeconds()
	if age2 > age1+1 {
		t.Fatalf("expected second refresh to be a no-op within TTL")
	}
}

func TestRegistryFreezeModeSkipsRefresh(t *testing.T) {
	m, _ := newTestManager(t)
	m.cfg.RegistryFreezeMode = true
	if err := m.RefreshCatalog(context.Background()); err != nil {
		t.Fatalf("expected no-op under freeze mode, got %v", err)
	}
	if !m.RegistryFreezeMode() {
		t.Fatalf("expected RegistryFreezeMode to report true")
	}
}

func TestEvictBackgroundRespectsMaxEntries(t *testing.T) {
	m, s := newTestManager(t)
	m.cfg.MaxEntries = 1
	ds1 := testDataset(t)
	ds2, err := model.NewDatasetID("111", "mus_musculus", "GRCm39")
	if err != nil {
		t.Fatalf("NewDatasetID: %v", err)
	}
	seedManifest(t, s, ds1)
	seedManifest(t, s, ds2)

	ctx := context.Background()
	if err := m.EnsureDatasetCached(ctx, ds1); err != nil {
		t.Fatalf("EnsureDatasetCached ds1: %v", err)
	}
	if err := m.EnsureDatasetCached(ctx, ds2); err != nil {
		t.Fatalf("EnsureDatasetCached ds2: %v", err)
	}
	debug := m.CachedDatasetsDebug()
	if len(debug) > 1 {
		t.Fatalf("expected eviction to bound cache to 1 entry, got %d", len(debug))
	}
}

func TestSpawnBackgroundTasksStopsCleanly(t *testing.T) {
	m, s := newTestManager(t)
	ds := testDataset(t)
	seedManifest(t, s, ds)
	m.cfg.EvictionCheckInterval = 10 * time.Millisecond
	m.cfg.IntegrityReverifyInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	m.SpawnBackgroundTasks(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	m.Stop()
}
