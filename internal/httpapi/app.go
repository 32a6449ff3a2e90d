// Package httpapi wires the query serving core's HTTP surface: a
// gorilla/mux router, request-scoped middleware (request-id propagation,
// rate limiting, recovery, CORS), and the handlers for every v1 endpoint,
// all built on top of the dataset cache manager, policy engine, and gene
// store that do the actual work.
package httpapi

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bijux/atlas/internal/cache"
	"github.com/bijux/atlas/internal/policy"
	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/config"
	"github.com/bijux/atlas/pkg/model"
	"github.com/bijux/atlas/pkg/telemetry"
)

// Version identifies the running build in /v1/version responses. Set at
// build time via -ldflags; "dev" otherwise.
var Version = "dev"

// App bundles every collaborator a handler needs: the dataset cache, the
// admission engine, the rate limiter, structured logging, and the process
// configuration. One App is built at process startup and shared across all
// requests; it holds no per-request state.
type App struct {
	Config  config.AtlasConfig
	Cache   *cache.Manager
	Backend store.Backend
	Policy  *policy.Engine
	Limiter *policy.RateLimiter
	Logger  *telemetry.Logger
	Meter   telemetry.Meter

	draining atomic.Bool
	started  time.Time
}

// NewApp constructs an App from its already-resolved collaborators. Callers
// (cmd/atlas-server) are responsible for building Cache/Policy/Limiter from
// cfg before calling this.
func NewApp(cfg config.AtlasConfig, cacheMgr *cache.Manager, backend store.Backend, eng *policy.Engine, limiter *policy.RateLimiter, logger *telemetry.Logger, meter telemetry.Meter) *App {
	if logger == nil {
		logger = telemetry.NewDefaultLogger(nil, cfg.Service)
	}
	if meter == nil {
		meter = telemetry.NopMeter{}
	}
	return &App{
		Config:  cfg,
		Cache:   cacheMgr,
		Backend: backend,
		Policy:  eng,
		Limiter: limiter,
		Logger:  logger,
		Meter:   meter,
		started: time.Now(),
	}
}

// SetDraining flips the drain flag read by the router's drain gate and by
// /readyz: once set, new /v1/ requests are rejected with
// QueryRejectedByPolicy rather than admitted, and /readyz reports NotReady.
func (a *App) SetDraining(v bool) { a.draining.Store(v) }

// Draining reports whether the server is currently refusing new work.
func (a *App) Draining() bool { return a.draining.Load() }

// Uptime reports how long this App has been serving.
func (a *App) Uptime() time.Duration { return time.Since(a.started) }

// openGeneStore opens a read-only GeneStore against dataset's cached sqlite
// file, ensuring the dataset is fetched and verified first.
func (a *App) openGeneStore(ctx context.Context, dataset model.DatasetID) (*store.GeneStore, error) {
	path, err := a.Cache.SQLitePath(ctx, dataset)
	if err != nil {
		return nil, err
	}
	return store.OpenGeneStore(path)
}
