package cache

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
	"github.com/bijux/atlas/pkg/telemetry"
)

var cryptoRandRead = cryptorand.Read

var (
	ErrCache        = errors.New("cache: operation failed")
	ErrQuarantined  = errors.New("cache: dataset quarantined")
	ErrBreakerOpen  = errors.New("cache: catalog circuit breaker open")
	ErrBackoffActive = errors.New("cache: catalog backoff active")
)

// Config sizes and paces the dataset cache manager.
type Config struct {
	// DiskRoot is the on-disk working-set root each cached dataset's
	// derived artifacts are written under, at
	// release=R/species=S/assembly=A/derived/. Every deletion path is
	// recanonicalized and asserted to live under DiskRoot before any I/O,
	// per the concurrency/resource model's disk-path containment rule.
	DiskRoot string

	MaxEntries int
	MaxBytes   int64

	EvictionCheckInterval   time.Duration
	IntegrityReverifyInterval time.Duration

	RegistryTTL                   time.Duration
	CatalogBackoffBaseMS          int64
	CatalogBreakerFailureThreshold int
	CatalogBreakerOpenMS          int64

	StartupWarmup                []model.DatasetID
	StartupWarmupLimit            int
	FailReadinessOnMissingWarmup bool

	CachedOnlyMode     bool
	RegistryFreezeMode bool

	QuarantineAfterFailures int
}

// DefaultConfig mirrors the conservative defaults used when no AtlasConfig
// overrides are present.
func DefaultConfig() Config {
	return Config{
		MaxEntries:                     32,
		MaxBytes:                       20 * 1024 * 1024 * 1024,
		EvictionCheckInterval:          30 * time.Second,
		IntegrityReverifyInterval:      5 * time.Minute,
		RegistryTTL:                    30 * time.Second,
		CatalogBackoffBaseMS:           500,
		CatalogBreakerFailureThreshold: 5,
		CatalogBreakerOpenMS:           30_000,
		StartupWarmupLimit:             8,
		QuarantineAfterFailures:        3,
	}
}

type entry struct {
	manifest   model.Manifest
	sizeBytes  int64
	lastAccess time.Time
	lastVerified time.Time
	sqlitePath string
}

type breakerState struct {
	failureCount int
}

type catalogCacheState struct {
	etag              string
	catalog           model.Catalog
	refreshedAt       time.Time
	consecutiveErrors int
	backoffUntil      time.Time
	breakerOpenUntil  time.Time
}

// DatasetHealthSnapshot reports one dataset's cache/health state, served by
// the debug dataset-health endpoint.
type DatasetHealthSnapshot struct {
	Cached               bool
	ChecksumVerified      bool
	LastOpenSecondsAgo    *uint64
	SizeBytes             *int64
	OpenFailures          int
	Quarantined           bool
}

// Manager is the process-wide dataset cache: one goroutine-safe instance
// shared by every request-handling goroutine, grounded on the original
// server runtime's DatasetCacheManager lifecycle (startup warm-up,
// background eviction/reverify tickers, conditional catalog refresh with
// backoff and a circuit breaker).
type Manager struct {
	cfg    Config
	store  store.Backend
	policy Policy
	logger *telemetry.Logger

	entriesMu sync.Mutex
	entries   map[model.DatasetID]*entry

	locksMu sync.Mutex
	locks   map[model.DatasetID]*sync.Mutex

	breakersMu sync.Mutex
	breakers   map[model.DatasetID]*breakerState

	quarantinedMu sync.Mutex
	quarantined   map[model.DatasetID]struct{}

	catalogMu    sync.Mutex
	catalogState catalogCacheState

	healthMu sync.RWMutex
	health   []store.SourceHealth

	catalogEpochHashMu sync.RWMutex
	catalogEpochHash   string

	sequenceMu sync.Mutex
	sequence   map[model.DatasetID]*sequenceCacheEntry

	registryInvalidationEventsTotal atomic.Int64
	registryRefreshFailuresTotal    atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewManager(cfg Config, backend store.Backend, logger *telemetry.Logger) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: store backend is nil", ErrCache)
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 32
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 * 1024 * 1024 * 1024
	}
	if cfg.EvictionCheckInterval <= 0 {
		cfg.EvictionCheckInterval = 30 * time.Second
	}
	if cfg.IntegrityReverifyInterval <= 0 {
		cfg.IntegrityReverifyInterval = 5 * time.Minute
	}
	if cfg.RegistryTTL <= 0 {
		cfg.RegistryTTL = 30 * time.Second
	}
	if cfg.QuarantineAfterFailures <= 0 {
		cfg.QuarantineAfterFailures = 3
	}
	if logger == nil {
		logger = telemetry.Nop
	}
	if strings.TrimSpace(cfg.DiskRoot) != "" {
		abs, err := filepath.Abs(cfg.DiskRoot)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve disk_root: %v", ErrCache, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create disk_root: %v", ErrCache, err)
		}
		cfg.DiskRoot = abs
	}
	return &Manager{
		cfg:         cfg,
		store:       backend,
		policy:      DefaultPolicy(),
		logger:      logger,
		entries:     make(map[model.DatasetID]*entry),
		locks:       make(map[model.DatasetID]*sync.Mutex),
		breakers:    make(map[model.DatasetID]*breakerState),
		quarantined: make(map[model.DatasetID]struct{}),
		sequence:    make(map[model.DatasetID]*sequenceCacheEntry),
		stopCh:      make(chan struct{}),
	}, nil
}

// diskPathFor resolves the on-disk path for one of a dataset's derived
// artifact files and asserts it is contained within DiskRoot, the
// recanonicalize-before-I/O discipline every destructive/write path in the
// cache manager and the GC tooling shares.
func (m *Manager) diskPathFor(dataset model.DatasetID, filename string) (string, error) {
	if m.cfg.DiskRoot == "" {
		return "", fmt.Errorf("%w: disk_root is not configured", ErrCache)
	}
	abs := filepath.Join(m.cfg.DiskRoot, filepath.FromSlash(dataset.DerivedDir()), filename)
	rootWithSep := m.cfg.DiskRoot + string(filepath.Separator)
	if abs != m.cfg.DiskRoot && !strings.HasPrefix(abs, rootWithSep) {
		return "", fmt.Errorf("%w: resolved path escapes disk_root", ErrCache)
	}
	return abs, nil
}

// writeAtomic writes data to path via a temp-file-then-rename, so a reader
// (the sqlite driver opening the file mid-fetch) never observes a partial
// write, per the dataset fetch & verification section's atomicity rule.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %v", ErrCache, err)
	}
	tmp := path + ".tmp-" + randomSuffix()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write temp file: %v", ErrCache, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename temp file: %v", ErrCache, err)
	}
	return nil
}

func randomSuffix() string {
	var b [8]byte
	if _, err := cryptoRandRead(b[:]); err != nil {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
		return hex.EncodeToString(sum[:8])
	}
	return hex.EncodeToString(b[:])
}

func (m *Manager) lockFor(dataset model.DatasetID) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[dataset]
	if !ok {
		l = &sync.Mutex{}
		m.locks[dataset] = l
	}
	return l
}

// StartupWarmup deterministically sorts and dedupes the configured warm-up
// set, bounds it by StartupWarmupLimit and MaxEntries, and ensures each
// dataset is cached before the process reports ready.
func (m *Manager) StartupWarmup(ctx context.Context) error {
	warm := make([]model.DatasetID, 0, len(m.cfg.StartupWarmup))
	seen := make(map[model.DatasetID]struct{}, len(m.cfg.StartupWarmup))
	for _, ds := range m.cfg.StartupWarmup {
		if _, ok := seen[ds]; ok {
			continue
		}
		seen[ds] = struct{}{}
		warm = append(warm, ds)
	}
	sort.Slice(warm, func(i, j int) bool { return warm[i].CanonicalString() < warm[j].CanonicalString() })

	limit := m.cfg.StartupWarmupLimit
	if limit <= 0 || limit > m.cfg.MaxEntries {
		limit = m.cfg.MaxEntries
	}
	if len(warm) > limit {
		warm = warm[:limit]
	}

	for _, ds := range warm {
		if err := m.EnsureDatasetCached(ctx, ds); err != nil {
			if m.cfg.FailReadinessOnMissingWarmup {
				return fmt.Errorf("%w: warmup failed for %s: %v", ErrCache, ds.CanonicalString(), err)
			}
			m.logger.Error(ctx, "warmup error", map[string]any{"dataset": ds.CanonicalString(), "error": err.Error()})
		}
	}
	return nil
}

// SpawnBackgroundTasks starts the catalog refresh, eviction, and
// reverification tickers. Stop cancels all three and waits for them to exit.
func (m *Manager) SpawnBackgroundTasks(ctx context.Context) {
	m.wg.Add(3)
	go m.catalogRefreshLoop(ctx)
	go m.evictionLoop(ctx)
	go m.reverifyLoop(ctx)
}

// catalogRefreshLoop periodically calls RefreshCatalog; the call itself is a
// TTL/backoff/breaker-gated no-op when nothing needs doing, so ticking
// faster than RegistryTTL is harmless.
func (m *Manager) catalogRefreshLoop(ctx context.Context) {
	defer m.wg.Done()
	interval := m.cfg.RegistryTTL
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-t.C:
			if err := m.RefreshCatalog(ctx); err != nil && !errors.Is(err, ErrBreakerOpen) && !errors.Is(err, ErrBackoffActive) {
				m.logger.Error(ctx, "catalog refresh error", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Manager) evictionLoop(ctx context.Context) {
	defer m.wg.Done()
	t := time.NewTicker(m.cfg.EvictionCheckInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-t.C:
			if err := m.EvictBackground(ctx); err != nil {
				m.logger.Error(ctx, "eviction error", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (m *Manager) reverifyLoop(ctx context.Context) {
	defer m.wg.Done()
	t := time.NewTicker(m.cfg.IntegrityReverifyInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-t.C:
			if err := m.ReverifyCachedDatasets(ctx); err != nil {
				m.logger.Error(ctx, "reverify error", map[string]any{"error": err.Error()})
			}
		}
	}
}

// EnsureDatasetCached fetches and verifies dataset's manifest if it is not
// already cached, taking the dataset's own lock so concurrent callers for
// the same dataset don't duplicate the fetch.
func (m *Manager) EnsureDatasetCached(ctx context.Context, dataset model.DatasetID) error {
	if m.isQuarantined(dataset) {
		return fmt.Errorf("%w: %s", ErrQuarantined, dataset.CanonicalString())
	}

	lock := m.lockFor(dataset)
	lock.Lock()
	defer lock.Unlock()

	m.entriesMu.Lock()
	if e, ok := m.entries[dataset]; ok {
		e.lastAccess = time.Now()
		m.entriesMu.Unlock()
		return nil
	}
	m.entriesMu.Unlock()

	if m.cfg.CachedOnlyMode {
		return fmt.Errorf("%w: %s not cached and cached_only_mode is set", ErrCache, dataset.CanonicalString())
	}

	manifest, err := m.store.FetchManifest(ctx, dataset)
	if err != nil {
		m.recordFailure(dataset)
		return fmt.Errorf("%w: fetch manifest for %s: %v", ErrCache, dataset.CanonicalString(), err)
	}
	if !manifest.VerifyHash() {
		m.recordFailure(dataset)
		return fmt.Errorf("%w: manifest hash mismatch for %s", ErrCache, dataset.CanonicalString())
	}

	sqliteBytes, err := m.store.FetchSQLiteBytes(ctx, dataset)
	if err != nil {
		m.recordFailure(dataset)
		return fmt.Errorf("%w: fetch sqlite for %s: %v", ErrCache, dataset.CanonicalString(), err)
	}
	sum := sha256.Sum256(sqliteBytes)
	if hex.EncodeToString(sum[:]) != manifest.Checksums.SQLiteSHA256 {
		m.recordFailure(dataset)
		return fmt.Errorf("%w: sqlite checksum mismatch for %s", ErrCache, dataset.CanonicalString())
	}
	size := int64(len(sqliteBytes))
	if !m.policy.Admit(artifact.KindGeneSummary, size) {
		return fmt.Errorf("%w: %s sqlite is %d bytes, over the cache admission limit", ErrCache, dataset.CanonicalString(), size)
	}

	var sqlitePath string
	if m.cfg.DiskRoot != "" {
		path, err := m.diskPathFor(dataset, "gene_summary.sqlite")
		if err != nil {
			m.recordFailure(dataset)
			return err
		}
		if err := writeAtomic(path, sqliteBytes); err != nil {
			m.recordFailure(dataset)
			return fmt.Errorf("%w: persist sqlite for %s: %v", ErrCache, dataset.CanonicalString(), err)
		}
		sqlitePath = path
	}

	now := time.Now()
	m.entriesMu.Lock()
	m.entries[dataset] = &entry{manifest: manifest, sizeBytes: size, lastAccess: now, lastVerified: now, sqlitePath: sqlitePath}
	overBudget := len(m.entries) > m.cfg.MaxEntries
	m.entriesMu.Unlock()
	if overBudget {
		if err := m.EvictBackground(ctx); err != nil {
			m.logger.Error(ctx, "eviction after admit failed", map[string]any{"error": err.Error()})
		}
	}

	m.clearFailures(dataset)
	return nil
}

// SQLitePath returns the on-disk path to dataset's cached gene_summary.sqlite
// file, calling EnsureDatasetCached first if it isn't already resident. The
// path is only valid for the lifetime of the returned call; a concurrent
// eviction cannot remove a dataset this call just (re)admitted because
// EnsureDatasetCached/EvictBackground both serialize through entriesMu.
func (m *Manager) SQLitePath(ctx context.Context, dataset model.DatasetID) (string, error) {
	if err := m.EnsureDatasetCached(ctx, dataset); err != nil {
		return "", err
	}
	m.entriesMu.Lock()
	e, ok := m.entries[dataset]
	if ok {
		e.lastAccess = time.Now()
	}
	m.entriesMu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s not cached", ErrCache, dataset.CanonicalString())
	}
	if e.sqlitePath == "" {
		return "", fmt.Errorf("%w: cache manager has no disk_root configured", ErrCache)
	}
	return e.sqlitePath, nil
}

// EvictBackground removes least-recently-used entries until the cache is
// under both MaxEntries and MaxBytes.
func (m *Manager) EvictBackground(ctx context.Context) error {
	m.entriesMu.Lock()

	total := int64(0)
	type ds struct {
		id         model.DatasetID
		lastAccess time.Time
	}
	list := make([]ds, 0, len(m.entries))
	for id, e := range m.entries {
		total += e.sizeBytes
		list = append(list, ds{id: id, lastAccess: e.lastAccess})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].lastAccess.Before(list[j].lastAccess) })

	i := 0
	for (len(m.entries) > m.cfg.MaxEntries || total > m.cfg.MaxBytes) && i < len(list) {
		victim := list[i].id
		if e, ok := m.entries[victim]; ok {
			total -= e.sizeBytes
			m.removeOnDisk(victim, e)
			delete(m.entries, victim)
		}
		i++
	}
	m.entriesMu.Unlock()
	m.evictSequenceCache()
	return nil
}

// removeOnDisk deletes a cached dataset's on-disk derived-artifact
// directory, recanonicalizing the path and asserting containment within
// DiskRoot before any delete, per the disk-path containment rule shared
// with GC.
func (m *Manager) removeOnDisk(dataset model.DatasetID, e *entry) {
	if e.sqlitePath == "" || m.cfg.DiskRoot == "" {
		return
	}
	dir, err := m.diskPathFor(dataset, "")
	if err != nil {
		m.logger.Error(context.Background(), "evict: path containment check failed", map[string]any{"error": err.Error()})
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Error(context.Background(), "evict: remove on-disk dataset failed", map[string]any{"error": err.Error()})
	}
}

// ReverifyCachedDatasets re-checks every cached dataset's manifest hash,
// quarantining a dataset once it has accumulated QuarantineAfterFailures
// consecutive checksum mismatches.
func (m *Manager) ReverifyCachedDatasets(ctx context.Context) error {
	m.entriesMu.Lock()
	ids := make([]model.DatasetID, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.entriesMu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].CanonicalString() < ids[j].CanonicalString() })

	for _, id := range ids {
		ok, err := m.VerifyDatasetIntegrityStrict(ctx, id)
		if err != nil || !ok {
			m.recordFailure(id)
			continue
		}
		m.clearFailures(id)
	}
	return nil
}

func (m *Manager) VerifyDatasetIntegrityStrict(ctx context.Context, dataset model.DatasetID) (bool, error) {
	m.entriesMu.Lock()
	e, ok := m.entries[dataset]
	m.entriesMu.Unlock()
	if !ok {
		return false, nil
	}
	fresh, err := m.store.FetchManifest(ctx, dataset)
	if err != nil {
		return false, err
	}
	return fresh.VerifyHash() && fresh.ArtifactHash == e.manifest.ArtifactHash, nil
}

func (m *Manager) recordFailure(dataset model.DatasetID) {
	m.breakersMu.Lock()
	b, ok := m.breakers[dataset]
	if !ok {
		b = &breakerState{}
		m.breakers[dataset] = b
	}
	b.failureCount++
	fc := b.failureCount
	m.breakersMu.Unlock()

	if fc >= m.cfg.QuarantineAfterFailures {
		m.quarantinedMu.Lock()
		m.quarantined[dataset] = struct{}{}
		m.quarantinedMu.Unlock()
	}
}

func (m *Manager) clearFailures(dataset model.DatasetID) {
	m.breakersMu.Lock()
	delete(m.breakers, dataset)
	m.breakersMu.Unlock()
}

func (m *Manager) isQuarantined(dataset model.DatasetID) bool {
	m.quarantinedMu.Lock()
	defer m.quarantinedMu.Unlock()
	_, ok := m.quarantined[dataset]
	return ok
}

// RefreshCatalog runs the conditional catalog fetch protocol: skip if the
// cached copy is within RegistryTTL, refuse while the circuit breaker is
// open or a backoff window is active, otherwise fetch with If-None-Match
// and update backoff/breaker state from the outcome.
func (m *Manager) RefreshCatalog(ctx context.Context) error {
	if m.cfg.RegistryFreezeMode {
		return nil
	}

	m.catalogMu.Lock()
	now := time.Now()
	if !m.catalogState.refreshedAt.IsZero() && now.Sub(m.catalogState.refreshedAt) < m.cfg.RegistryTTL {
		m.catalogMu.Unlock()
		return nil
	}
	if !m.catalogState.breakerOpenUntil.IsZero() && now.Before(m.catalogState.breakerOpenUntil) {
		m.catalogMu.Unlock()
		return ErrBreakerOpen
	}
	if !m.catalogState.backoffUntil.IsZero() && now.Before(m.catalogState.backoffUntil) {
		m.catalogMu.Unlock()
		return ErrBackoffActive
	}
	etag := m.catalogState.etag
	m.catalogMu.Unlock()

	fetch, err := m.store.FetchCatalog(ctx, etag)
	if err != nil {
		m.onCatalogRefreshFailure()
		m.registryRefreshFailuresTotal.Add(1)
		return err
	}

	switch fetch.Status {
	case store.CatalogNotModified:
		m.catalogMu.Lock()
		m.catalogState.consecutiveErrors = 0
		m.catalogState.backoffUntil = time.Time{}
		m.catalogState.breakerOpenUntil = time.Time{}
		m.catalogState.refreshedAt = time.Now()
		m.catalogMu.Unlock()
		m.refreshHealth(ctx)
		return nil
	case store.CatalogUpdated:
		catalogBytes, err := fetch.Catalog.CanonicalBytes()
		if err != nil {
			return fmt.Errorf("%w: canonicalize catalog: %v", ErrCache, err)
		}
		epochHash := canonicaljson.SHA256Hex(catalogBytes)

		m.catalogEpochHashMu.RLock()
		oldEpoch := m.catalogEpochHash
		m.catalogEpochHashMu.RUnlock()

		m.catalogMu.Lock()
		m.catalogState.etag = fetch.ETag
		m.catalogState.catalog = fetch.Catalog
		m.catalogState.consecutiveErrors = 0
		m.catalogState.backoffUntil = time.Time{}
		m.catalogState.breakerOpenUntil = time.Time{}
		m.catalogState.refreshedAt = time.Now()
		m.catalogMu.Unlock()

		m.catalogEpochHashMu.Lock()
		m.catalogEpochHash = epochHash
		m.catalogEpochHashMu.Unlock()

		if oldEpoch != "" && oldEpoch != epochHash {
			m.registryInvalidationEventsTotal.Add(1)
		}
		m.refreshHealth(ctx)
		m.logger.Info(ctx, "catalog epoch updated", map[string]any{"epoch_hash": epochHash})
		return nil
	}
	return nil
}

func (m *Manager) onCatalogRefreshFailure() {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	m.catalogState.consecutiveErrors++
	backoffMS := m.cfg.CatalogBackoffBaseMS * int64(m.catalogState.consecutiveErrors)
	if backoffMS > 5000 {
		backoffMS = 5000
	}
	m.catalogState.backoffUntil = time.Now().Add(time.Duration(backoffMS) * time.Millisecond)
	if m.catalogState.consecutiveErrors >= m.cfg.CatalogBreakerFailureThreshold {
		m.catalogState.breakerOpenUntil = time.Now().Add(time.Duration(m.cfg.CatalogBreakerOpenMS) * time.Millisecond)
	}
}

func (m *Manager) refreshHealth(ctx context.Context) {
	h := m.store.RegistryHealth(ctx)
	m.healthMu.Lock()
	m.health = h
	m.healthMu.Unlock()
}

func (m *Manager) CatalogEpoch() string {
	m.catalogEpochHashMu.RLock()
	defer m.catalogEpochHashMu.RUnlock()
	return m.catalogEpochHash
}

func (m *Manager) CachedOnlyMode() bool     { return m.cfg.CachedOnlyMode }
func (m *Manager) RegistryFreezeMode() bool { return m.cfg.RegistryFreezeMode }

func (m *Manager) CurrentCatalog() model.Catalog {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	return m.catalogState.catalog
}

func (m *Manager) RegistryHealth() []store.SourceHealth {
	m.healthMu.RLock()
	defer m.healthMu.RUnlock()
	out := make([]store.SourceHealth, len(m.health))
	copy(out, m.health)
	return out
}

func (m *Manager) RegistryRefreshAgeSeconds() uint64 {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	if m.catalogState.refreshedAt.IsZero() {
		return ^uint64(0)
	}
	return uint64(time.Since(m.catalogState.refreshedAt).Seconds())
}

func (m *Manager) FetchManifestSummary(ctx context.Context, dataset model.DatasetID) (model.Manifest, error) {
	return m.store.FetchManifest(ctx, dataset)
}

func (m *Manager) DatasetHealthSnapshot(ctx context.Context, dataset model.DatasetID) (DatasetHealthSnapshot, error) {
	m.breakersMu.Lock()
	openFailures := 0
	if b, ok := m.breakers[dataset]; ok {
		openFailures = b.failureCount
	}
	m.breakersMu.Unlock()

	quarantined := m.isQuarantined(dataset)

	m.entriesMu.Lock()
	e, cached := m.entries[dataset]
	var lastOpen *uint64
	var size *int64
	if cached {
		s := uint64(time.Since(e.lastAccess).Seconds())
		lastOpen = &s
		sz := e.sizeBytes
		size = &sz
	}
	m.entriesMu.Unlock()

	checksumVerified := false
	if cached {
		ok, err := m.VerifyDatasetIntegrityStrict(ctx, dataset)
		if err != nil {
			return DatasetHealthSnapshot{}, err
		}
		checksumVerified = ok
	}

	return DatasetHealthSnapshot{
		Cached:             cached,
		ChecksumVerified:   checksumVerified,
		LastOpenSecondsAgo: lastOpen,
		SizeBytes:          size,
		OpenFailures:       openFailures,
		Quarantined:        quarantined,
	}, nil
}

// CachedDatasetsDebug returns a sorted (canonical_string, size_bytes) list
// for the debug cache-state endpoint.
func (m *Manager) CachedDatasetsDebug() []struct {
	Dataset string
	Bytes   int64
} {
	m.entriesMu.Lock()
	defer m.entriesMu.Unlock()
	out := make([]struct {
		Dataset string
		Bytes   int64
	}, 0, len(m.entries))
	for id, e := range m.entries {
		out = append(out, struct {
			Dataset string
			Bytes   int64
		}{Dataset: id.CanonicalString(), Bytes: e.sizeBytes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dataset < out[j].Dataset })
	return out
}
