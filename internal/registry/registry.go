// Package registry implements the federated catalog registry: an
// ordered list of RegistrySource backends merged into one canonical
// catalog with priority-based shadowing and optional per-source
// signature pinning.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
)

var (
	ErrNoSources      = errors.New("registry: no sources configured")
	ErrAllSourcesFail = errors.New("registry: all sources failed")
)

// SourceHealth mirrors store.SourceHealth plus the shadow-accounting field
// the federated merge adds.
type SourceHealth struct {
	Name              string
	Healthy           bool
	LastError         string
	ShadowedDatasets  int
	LastFetchAgeS     float64
}

// RegistrySource is one named, priority-ordered catalog source. A lower
// Priority value is consulted first.
type RegistrySource struct {
	Name                     string
	Store                    store.Backend
	Priority                 int
	TTL                      time.Duration
	ExpectedCatalogSignature string

	mu           sync.Mutex
	lastFetch    time.Time
	healthy      bool
	lastError    string
	lastShadowed int
}

// FederatedBackend merges an ordered list of RegistrySources into a single
// store.Backend view: catalog merge is priority-ordered with shadow
// accounting, artifact fetches try sources in priority order until one
// succeeds.
type FederatedBackend struct {
	mu      sync.RWMutex
	sources []*RegistrySource
}

func NewFederatedBackend(sources []RegistrySource) (*FederatedBackend, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	owned := make([]*RegistrySource, len(sources))
	for i := range sources {
		s := sources[i]
		owned[i] = &s
	}
	sort.SliceStable(owned, func(i, j int) bool { return owned[i].Priority < owned[j].Priority })
	return &FederatedBackend{sources: owned}, nil
}

func (f *FederatedBackend) BackendTag() string { return "federated" }

// FetchCatalog fetches every source's catalog, validates optional signature
// pins, and merges in priority order: the first source's datasets are taken
// verbatim; each subsequent source contributes only datasets not already
// present, and records how many of its own datasets were shadowed by
// earlier sources.
func (f *FederatedBackend) FetchCatalog(ctx context.Context, ifNoneMatchETag string) (store.CatalogFetch, error) {
	f.mu.RLock()
	sources := append([]*RegistrySource(nil), f.sources...)
	f.mu.RUnlock()

	type fetched struct {
		src *RegistrySource
		cat model.Catalog
		ok  bool
	}
	results := make([]fetched, 0, len(sources))

	for _, src := range sources {
		fetch, err := src.Store.FetchCatalog(ctx, "")
		src.mu.Lock()
		src.lastFetch = time.Now()
		if err != nil {
			src.healthy = false
			src.lastError = err.Error()
			src.mu.Unlock()
			continue
		}
		cat := fetch.Catalog
		if src.ExpectedCatalogSignature != "" {
			b, cerr := cat.CanonicalBytes()
			sig := canonicaljson.SHA256Hex(b)
			if cerr != nil || sig != src.ExpectedCatalogSignature {
				src.healthy = false
				src.lastError = "signature mismatch"
				src.mu.Unlock()
				continue
			}
		}
		src.healthy = true
		src.lastError = ""
		src.mu.Unlock()
		results = append(results, fetched{src: src, cat: cat, ok: true})
	}

	if len(results) == 0 {
		return store.CatalogFetch{}, ErrAllSourcesFail
	}

	seen := make(map[model.DatasetID]struct{})
	var merged []model.CatalogEntry
	for _, r := range results {
		thisDatasets := make(map[model.DatasetID]struct{}, len(r.cat.Entries))
		for _, e := range r.cat.Entries {
			thisDatasets[e.Dataset] = struct{}{}
		}
		shadowed := 0
		for _, e := range r.cat.Entries {
			if _, dup := seen[e.Dataset]; dup {
				shadowed++
				continue
			}
			seen[e.Dataset] = struct{}{}
			merged = append(merged, e)
		}
		r.src.mu.Lock()
		r.src.lastShadowed = shadowed
		r.src.mu.Unlock()
	}

	catalog := model.Catalog{Entries: merged}
	catalog.SortEntries()

	b, err := catalog.CanonicalBytes()
	if err != nil {
		return store.CatalogFetch{}, fmt.Errorf("canonicalize merged catalog: %w", err)
	}
	etag := canonicaljson.SHA256Hex(b)
	if ifNoneMatchETag != "" && ifNoneMatchETag == etag {
		return store.CatalogFetch{Status: store.CatalogNotModified, ETag: etag}, nil
	}
	return store.CatalogFetch{Status: store.CatalogUpdated, ETag: etag, Catalog: catalog}, nil
}

// tryInPriorityOrder calls fn against each source in priority order,
// returning the first success.
func (f *FederatedBackend) tryInPriorityOrder(fn func(store.Backend) (any, error)) (any, error) {
	f.mu.RLock()
	sources := append([]*RegistrySource(nil), f.sources...)
	f.mu.RUnlock()

	var lastErr error
	for _, src := range sources {
		v, err := fn(src.Store)
		src.mu.Lock()
		if err != nil {
			src.healthy = false
			src.lastError = err.Error()
			lastErr = err
			src.mu.Unlock()
			continue
		}
		src.healthy = true
		src.lastError = ""
		src.mu.Unlock()
		return v, nil
	}
	if lastErr == nil {
		lastErr = ErrAllSourcesFail
	}
	return nil, fmt.Errorf("%w: %v", ErrAllSourcesFail, lastErr)
}

func (f *FederatedBackend) FetchManifest(ctx context.Context, dataset model.DatasetID) (model.Manifest, error) {
	v, err := f.tryInPriorityOrder(func(b store.Backend) (any, error) { return b.FetchManifest(ctx, dataset) })
	if err != nil {
		return model.Manifest{}, err
	}
	return v.(model.Manifest), nil
}

func (f *FederatedBackend) FetchSQLiteBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	v, err := f.tryInPriorityOrder(func(b store.Backend) (any, error) { return b.FetchSQLiteBytes(ctx, dataset) })
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (f *FederatedBackend) FetchFASTABytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	v, err := f.tryInPriorityOrder(func(b store.Backend) (any, error) { return b.FetchFASTABytes(ctx, dataset) })
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (f *FederatedBackend) FetchFAIBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	v, err := f.tryInPriorityOrder(func(b store.Backend) (any, error) { return b.FetchFAIBytes(ctx, dataset) })
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (f *FederatedBackend) FetchReleaseGeneIndexBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	v, err := f.tryInPriorityOrder(func(b store.Backend) (any, error) { return b.FetchReleaseGeneIndexBytes(ctx, dataset) })
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (f *FederatedBackend) Get(ctx context.Context, objectKey string) ([]byte, error) {
	v, err := f.tryInPriorityOrder(func(b store.Backend) (any, error) { return b.Get(ctx, objectKey) })
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (f *FederatedBackend) Head(ctx context.Context, objectKey string) (int64, error) {
	v, err := f.tryInPriorityOrder(func(b store.Backend) (any, error) { return b.Head(ctx, objectKey) })
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// RegistryHealth reports one entry per configured source, in priority
// order, combining each source's own reachability with the shadow count
// computed by the most recent FetchCatalog call.
func (f *FederatedBackend) RegistryHealth(ctx context.Context) []store.SourceHealth {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]store.SourceHealth, 0, len(f.sources))
	for _, src := range f.sources {
		src.mu.Lock()
		out = append(out, store.SourceHealth{
			Name:      src.Name,
			Reachable: src.healthy,
			LastError: src.lastError,
		})
		src.mu.Unlock()
	}
	return out
}

// Health returns the richer per-source view (with shadow counts) used by
// the debug registry-health endpoint.
func (f *FederatedBackend) Health() []SourceHealth {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]SourceHealth, 0, len(f.sources))
	for _, src := range f.sources {
		src.mu.Lock()
		age := 0.0
		if !src.lastFetch.IsZero() {
			age = time.Since(src.lastFetch).Seconds()
		}
		out = append(out, SourceHealth{
			Name:             src.Name,
			Healthy:          src.healthy,
			LastError:        src.lastError,
			ShadowedDatasets: src.lastShadowed,
			LastFetchAgeS:    age,
		})
		src.mu.Unlock()
	}
	return out
}
