// Command atlas-server runs the query serving core: it loads process
// configuration, builds the store backend (single or federated), the
// dataset cache manager, the policy engine, and the rate limiter, then
// serves the v1 HTTP surface until a shutdown signal arrives.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/bijux/atlas/internal/cache"
	"github.com/bijux/atlas/internal/httpapi"
	"github.com/bijux/atlas/internal/httpapi/middleware"
	"github.com/bijux/atlas/internal/policy"
	"github.com/bijux/atlas/internal/registry"
	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/config"
	"github.com/bijux/atlas/pkg/model"
	"github.com/bijux/atlas/pkg/telemetry"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	env := strings.TrimSpace(os.Getenv("ATLAS_ENV"))
	if env == "" {
		env = "local"
	}
	configRoot := strings.TrimSpace(os.Getenv("ATLAS_CONFIG_ROOT"))
	if configRoot == "" {
		configRoot = "./config"
	}

	logger := telemetry.NewDefaultLogger(os.Stdout, "atlas-server")
	httpapi.Version = version

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx, configRoot, env)
	if err != nil {
		logger.Error(ctx, "config_load_failed", map[string]any{"error": err.Error()})
		return 1
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		logger.Error(ctx, "backend_build_failed", map[string]any{"error": err.Error()})
		return 1
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.DiskRoot = cfg.Cache.DiskRoot
	if cfg.Cache.MaxEntries > 0 {
		cacheCfg.MaxEntries = cfg.Cache.MaxEntries
	}
	if cfg.Cache.MaxBytes > 0 {
		cacheCfg.MaxBytes = cfg.Cache.MaxBytes
	}
	if d, err := time.ParseDuration(cfg.Cache.ReverifyInterval); err == nil && d > 0 {
		cacheCfg.IntegrityReverifyInterval = d
	}
	for _, w := range cfg.Cache.WarmUpDatasets {
		ds, err := model.ParseDatasetKey(w)
		if err != nil {
			logger.Warn(ctx, "warmup_dataset_invalid", map[string]any{"value": w, "error": err.Error()})
			continue
		}
		cacheCfg.StartupWarmup = append(cacheCfg.StartupWarmup, ds)
	}

	cacheMgr, err := cache.NewManager(cacheCfg, backend, logger)
	if err != nil {
		logger.Error(ctx, "cache_manager_build_failed", map[string]any{"error": err.Error()})
		return 1
	}

	if err := cacheMgr.RefreshCatalog(ctx); err != nil {
		logger.Warn(ctx, "initial_catalog_refresh_failed", map[string]any{"error": err.Error()})
	}
	if err := cacheMgr.StartupWarmup(ctx); err != nil && cacheCfg.FailReadinessOnMissingWarmup {
		logger.Error(ctx, "warmup_failed", map[string]any{"error": err.Error()})
		return 1
	}
	cacheMgr.SpawnBackgroundTasks(ctx)
	defer cacheMgr.Stop()

	limits := policy.DefaultLimits()
	if cfg.Policy.MaxLimit > 0 {
		limits.MaxLimit = cfg.Policy.MaxLimit
	}
	if cfg.Policy.MaxRangeSpan > 0 {
		limits.MaxRangeSpan = cfg.Policy.MaxRangeSpan
	}
	if cfg.Policy.MaxSerializationBytes > 0 {
		limits.MaxSerializationBytes = cfg.Policy.MaxSerializationBytes
	}
	if cfg.Policy.MaxDiskBytes > 0 {
		limits.MaxDiskBytes = cfg.Policy.MaxDiskBytes
	}
	if cfg.Concurrency.CheapSlots > 0 {
		limits.CheapPermits = cfg.Concurrency.CheapSlots
	}
	if cfg.Concurrency.MediumSlots > 0 {
		limits.MediumPermits = cfg.Concurrency.MediumSlots
	}
	if cfg.Concurrency.HeavySlots > 0 {
		limits.HeavyPermits = cfg.Concurrency.HeavySlots
	}
	if cfg.Concurrency.MaxQueueDepth > 0 {
		limits.MaxRequestQueueDepth = int64(cfg.Concurrency.MaxQueueDepth)
	}

	mode := policy.ModeStrict
	switch strings.ToLower(cfg.Env) {
	case "dev", "local":
		mode = policy.ModeDev
	case "staging":
		mode = policy.ModeCompat
	}
	eng := policy.New(limits, mode)
	limiter := policy.NewRateLimiter(cfg.Policy.RateLimitPerSecond, cfg.Policy.RateLimitPerSecond, eng)

	app := httpapi.NewApp(cfg, cacheMgr, backend, eng, limiter, logger, telemetry.NewInMemoryMeter())
	router := httpapi.NewRouter(app, middleware.DefaultCORSConfig())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logger.Error(ctx, "listen_failed", map[string]any{"addr": srv.Addr, "error": err.Error()})
		return 1
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", map[string]any{"addr": ln.Addr().String(), "env": cfg.Env, "version": version})
		errCh <- srv.Serve(ln)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(ctx, "shutdown_signal", map[string]any{"signal": sig.String()})
		app.SetDraining(true)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "server_error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "shutdown_failed", map[string]any{"error": err.Error()})
		_ = srv.Close()
		return 1
	}
	logger.Info(ctx, "shutdown_complete")
	return 0
}

// loadConfig layers <root>/atlas-server.json with <root>/env/<env>/atlas-server.json
// and ATLAS_SERVER_-prefixed environment overrides onto the conservative defaults.
func loadConfig(ctx context.Context, root, env string) (config.AtlasConfig, error) {
	loader, err := config.NewLoader(root, config.Options{
		Service: "atlas-server",
		Env:     env,
	})
	if err != nil {
		return config.AtlasConfig{}, fmt.Errorf("build loader: %w", err)
	}
	bundle, err := loader.Load(ctx)
	if err != nil {
		return config.AtlasConfig{}, fmt.Errorf("load bundle: %w", err)
	}
	return config.DecodeAtlasConfig(bundle)
}

// buildBackend resolves cfg.Store and any federated cfg.Registry sources
// into the single store.Backend the cache manager reads from. A non-empty
// Registry list always wins: its sources are merged by
// internal/registry.FederatedBackend, independent of cfg.Store.Backend.
func buildBackend(cfg config.AtlasConfig) (store.Backend, error) {
	if len(cfg.Registry) > 0 {
		sources := make([]registry.RegistrySource, 0, len(cfg.Registry))
		for _, rc := range cfg.Registry {
			src, err := buildRegistrySource(rc)
			if err != nil {
				return nil, fmt.Errorf("registry source %q: %w", rc.Name, err)
			}
			sources = append(sources, src)
		}
		return registry.NewFederatedBackend(sources)
	}
	return buildSingleBackend(cfg.Store)
}

// buildRegistrySource resolves one configured federated-catalog source.
// "postgres" mirrors catalog membership from a lib/pq-backed table (the
// driver is blank-imported at the top of this file) while delegating artifact bytes to an
// inner store rooted at rc.URL, per internal/registry.PGMirror's division
// of responsibility.
func buildRegistrySource(rc config.RegistrySourceConfig) (registry.RegistrySource, error) {
	var backend store.Backend
	var err error
	switch strings.ToLower(rc.Kind) {
	case "s3":
		backend, err = store.NewS3Store(store.S3Options{Endpoint: rc.URL})
	case "postgres":
		backend, err = buildPGMirrorSource(rc)
	case "local":
		backend, err = store.NewLocalStore(store.LocalOptions{Root: rc.URL})
	default:
		backend, err = store.NewLocalStore(store.LocalOptions{Root: rc.URL})
	}
	if err != nil {
		return registry.RegistrySource{}, err
	}
	return registry.RegistrySource{
		Name:     rc.Name,
		Store:    backend,
		Priority: rc.Priority,
		TTL:      30 * time.Second,
	}, nil
}

func buildPGMirrorSource(rc config.RegistrySourceConfig) (store.Backend, error) {
	inner, err := store.NewLocalStore(store.LocalOptions{Root: rc.URL})
	if err != nil {
		return nil, fmt.Errorf("pgmirror inner backend: %w", err)
	}
	db, err := sql.Open("postgres", rc.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgmirror connect: %w", err)
	}
	return registry.NewPGMirror(db, inner, registry.PGOptions{})
}

func buildSingleBackend(sc config.StoreConfig) (store.Backend, error) {
	switch sc.Backend {
	case config.StoreBackendS3:
		return store.NewS3Store(store.S3Options{
			Endpoint:  sc.S3Endpoint,
			Region:    sc.S3Region,
			Bucket:    sc.S3Bucket,
			AccessKey: sc.S3AccessKey,
			SecretKey: sc.S3SecretKey,
		})
	default:
		return store.NewLocalStore(store.LocalOptions{Root: sc.LocalDir})
	}
}
