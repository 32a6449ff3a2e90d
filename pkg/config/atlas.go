package config

import (
	"encoding/json"
	"fmt"
)

// StoreBackend names a configured Store implementation.
type StoreBackend string

const (
	StoreBackendLocal StoreBackend = "local"
	StoreBackendS3    StoreBackend = "s3"
)

// PolicyConfig mirrors the static policy set: hard caps enforced by the
// query serving core and the publish/ingest pipeline, independent of any
// single request.
type PolicyConfig struct {
	MaxLimit             int     `json:"max_limit"`
	MaxRangeSpan         uint64  `json:"max_range_span"`
	MaxSerializationBytes int64  `json:"max_serialization_bytes"`
	MaxDiskBytes          int64  `json:"max_disk_bytes"`
	RateLimitPerSecond    float64 `json:"rate_limit_per_second"`
	EnableDebugDatasets   bool    `json:"enable_debug_datasets"`
}

// ConcurrencyConfig bounds the per-class admission bulkheads described in
// the query serving core's concurrency model.
type ConcurrencyConfig struct {
	CheapSlots    int `json:"cheap_slots"`
	MediumSlots   int `json:"medium_slots"`
	HeavySlots    int `json:"heavy_slots"`
	MaxQueueDepth int `json:"max_queue_depth"`
}

// CacheConfig sizes the dataset cache manager.
type CacheConfig struct {
	MaxEntries       int      `json:"max_entries"`
	MaxBytes         int64    `json:"max_bytes"`
	ReverifyInterval string   `json:"reverify_interval"`
	WarmUpDatasets   []string `json:"warm_up_datasets,omitempty"`
	// DiskRoot is the on-disk working-set root cached datasets' derived
	// artifacts (gene_summary.sqlite) are written under. Empty disables
	// on-disk persistence and keeps the cache manager memory-only.
	DiskRoot string `json:"disk_root,omitempty"`
}

// StoreConfig selects and configures the store backend.
type StoreConfig struct {
	Backend  StoreBackend `json:"backend"`
	LocalDir string       `json:"local_dir,omitempty"`

	S3Endpoint   string `json:"s3_endpoint,omitempty"`
	S3Bucket     string `json:"s3_bucket,omitempty"`
	S3Region     string `json:"s3_region,omitempty"`
	S3AccessKey  string `json:"s3_access_key,omitempty"`
	S3SecretKey  string `json:"s3_secret_key,omitempty"`
}

// RegistrySourceConfig is one federated registry source.
type RegistrySourceConfig struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	// Kind is "http", "postgres", or "local".
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
	DSN  string `json:"dsn,omitempty"`
}

// AtlasConfig is the fully resolved process configuration, built from a
// Bundle's merged tree.
type AtlasConfig struct {
	Service     string                 `json:"service"`
	Env         string                 `json:"env"`
	ListenAddr  string                 `json:"listen_addr"`
	Policy      PolicyConfig           `json:"policy"`
	Concurrency ConcurrencyConfig      `json:"concurrency"`
	Cache       CacheConfig            `json:"cache"`
	Store       StoreConfig            `json:"store"`
	Registry    []RegistrySourceConfig `json:"registry"`
}

// DefaultAtlasConfig returns the conservative defaults used when a field is
// absent from every layer.
func DefaultAtlasConfig() AtlasConfig {
	return AtlasConfig{
		ListenAddr: ":8080",
		Policy: PolicyConfig{
			MaxLimit:              500,
			MaxRangeSpan:          5_000_000,
			MaxSerializationBytes: 16 * 1024 * 1024,
			MaxDiskBytes:          50 * 1024 * 1024 * 1024,
			RateLimitPerSecond:    200,
		},
		Concurrency: ConcurrencyConfig{
			CheapSlots:    64,
			MediumSlots:   16,
			HeavySlots:    4,
			MaxQueueDepth: 256,
		},
		Cache: CacheConfig{
			MaxEntries:       32,
			MaxBytes:         20 * 1024 * 1024 * 1024,
			ReverifyInterval: "5m",
			DiskRoot:         "/var/lib/atlas/cache",
		},
		Store: StoreConfig{
			Backend:  StoreBackendLocal,
			LocalDir: "/var/lib/atlas/artifacts",
		},
	}
}

// DecodeAtlasConfig maps a Bundle's merged tree onto AtlasConfig, starting
// from DefaultAtlasConfig and overlaying only the keys present in merged, so
// a Loader with zero files still produces a usable configuration.
func DecodeAtlasConfig(b *Bundle) (AtlasConfig, error) {
	cfg := DefaultAtlasConfig()
	if b == nil {
		return cfg, nil
	}
	cfg.Service = b.Service
	cfg.Env = b.Env

	// Overlay the merged tree onto the defaults at the map level, so a key
	// absent from every config file keeps its default rather than zeroing
	// out.
	defaultsRaw, err := json.Marshal(cfg)
	if err != nil {
		return AtlasConfig{}, fmt.Errorf("config: encode defaults: %w", err)
	}
	var defaultsMap map[string]any
	if err := json.Unmarshal(defaultsRaw, &defaultsMap); err != nil {
		return AtlasConfig{}, fmt.Errorf("config: decode defaults: %w", err)
	}

	merged := deepMergeDeterministic(defaultsMap, b.Merged, 32)

	mergedRaw, err := json.Marshal(merged)
	if err != nil {
		return AtlasConfig{}, fmt.Errorf("config: encode merged tree: %w", err)
	}
	var out AtlasConfig
	if err := json.Unmarshal(mergedRaw, &out); err != nil {
		return AtlasConfig{}, fmt.Errorf("config: decode merged tree: %w", err)
	}
	out.Service = b.Service
	out.Env = b.Env
	return out, nil
}
