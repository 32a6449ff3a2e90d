package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/bijux/atlas/internal/sequence"
	"github.com/bijux/atlas/pkg/model"
)

// sequenceCacheEntry holds one dataset's parsed FASTA records, fetched
// lazily on the first sequence request rather than during
// EnsureDatasetCached: most query traffic never touches raw sequence, so
// paying the FASTA parse cost up front would tax every dataset fetch for a
// feature only some callers use.
type sequenceCacheEntry struct {
	mu       sync.Mutex
	records  sequence.Records
	loaded   bool
	loadErr  error
}

// FetchSequence returns the base range [region.Start, region.End] (1-based,
// inclusive) for dataset, loading and caching the dataset's FASTA bytes on
// first use.
func (m *Manager) FetchSequence(ctx context.Context, dataset model.DatasetID, region model.Region) (string, error) {
	if m.isQuarantined(dataset) {
		return "", fmt.Errorf("%w: %s", ErrQuarantined, dataset.CanonicalString())
	}

	m.sequenceMu.Lock()
	e, ok := m.sequence[dataset]
	if !ok {
		e = &sequenceCacheEntry{}
		m.sequence[dataset] = e
	}
	m.sequenceMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		fastaBytes, err := m.store.FetchFASTABytes(ctx, dataset)
		if err != nil {
			e.loadErr = fmt.Errorf("%w: fetch fasta for %s: %v", ErrCache, dataset.CanonicalString(), err)
			e.loaded = true
			return "", e.loadErr
		}
		records, err := sequence.Parse(fastaBytes)
		if err != nil {
			e.loadErr = fmt.Errorf("%w: parse fasta for %s: %v", ErrCache, dataset.CanonicalString(), err)
			e.loaded = true
			return "", e.loadErr
		}
		e.records = records
		e.loaded = true
	}
	if e.loadErr != nil {
		return "", e.loadErr
	}
	return e.records.Extract(region.SeqID, region.Start, region.End)
}

// evictSequenceCache drops any sequence cache entries for datasets no
// longer present in entries, keeping sequence memory bounded by the same
// eviction pass that bounds disk usage.
func (m *Manager) evictSequenceCache() {
	m.entriesMu.Lock()
	live := make(map[model.DatasetID]struct{}, len(m.entries))
	for id := range m.entries {
		live[id] = struct{}{}
	}
	m.entriesMu.Unlock()

	m.sequenceMu.Lock()
	defer m.sequenceMu.Unlock()
	for id := range m.sequence {
		if _, ok := live[id]; !ok {
			delete(m.sequence, id)
		}
	}
}
