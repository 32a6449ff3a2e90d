// Package policy implements the cross-cutting admission gate: request
// queue-depth limiting, per-class concurrency bulkheads, a serialization
// byte-budget pre-check, and adaptive throttling under sustained overload.
package policy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bijux/atlas/internal/query"
	apierrors "github.com/bijux/atlas/pkg/errors"
)

// Mode is recorded on the Engine; Admit applies the same Limits whatever
// the mode, and there is no per-mode cap table. allow_override is never
// exposed in any mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeCompat Mode = "compat"
	ModeDev    Mode = "dev"
)

// Limits is the static policy set gating admission, independent of any
// single request.
type Limits struct {
	MaxLimit              int
	MaxRangeSpan           uint64
	MaxSerializationBytes  int64
	MaxDiskBytes           int64
	MaxRequestQueueDepth   int64
	CheapPermits           int
	MediumPermits          int
	HeavyPermits           int

	// AdaptiveHeavyLimitFactor scales the effective per-request limit for
	// heavy-class queries while Overloaded is set.
	AdaptiveHeavyLimitFactor float64
	// AdaptiveRateLimitFactor scales the rate-limit token rate while
	// Overloaded is set.
	AdaptiveRateLimitFactor float64

	HeavyProjectionLimit int
}

// DefaultLimits mirrors the conservative defaults used when no AtlasConfig
// overrides are present.
func DefaultLimits() Limits {
	return Limits{
		MaxLimit:                 500,
		MaxRangeSpan:             5_000_000,
		MaxSerializationBytes:    16 * 1024 * 1024,
		MaxDiskBytes:             50 * 1024 * 1024 * 1024,
		MaxRequestQueueDepth:     1024,
		CheapPermits:             64,
		MediumPermits:            16,
		HeavyPermits:             4,
		AdaptiveHeavyLimitFactor: 0.25,
		AdaptiveRateLimitFactor:  0.5,
		HeavyProjectionLimit:     500,
	}
}

// Violation is a typed policy-cap breach independent of any single request,
// surfaced by repository-level metric evaluation (dataset count, open
// shards, disk bytes).
type Violation struct {
	Rule     string
	Path     string
	Expected string
	Actual   string
}

func (v Violation) Error() string {
	return fmt.Sprintf("policy violation: %s at %s (expected %s, got %s)", v.Rule, v.Path, v.Expected, v.Actual)
}

// Engine is the admission gate shared by every request-handling goroutine.
// It holds the per-class semaphores and queue-depth counter; Limits are
// fixed when New builds the Engine, and there is no setter to change them.
type Engine struct {
	mu     sync.RWMutex
	limits Limits
	mode   Mode

	queuedRequests int64

	cheap  chan struct{}
	medium chan struct{}
	heavy  chan struct{}

	overloaded atomic.Bool
}

// New builds an Engine with its class semaphores sized from limits.
func New(limits Limits, mode Mode) *Engine {
	e := &Engine{limits: limits, mode: mode}
	e.cheap = make(chan struct{}, limits.CheapPermits)
	e.medium = make(chan struct{}, limits.MediumPermits)
	e.heavy = make(chan struct{}, limits.HeavyPermits)
	return e
}

// SetOverloaded flips the adaptive-throttling signal. Called by the health
// monitor loop, not by request handlers.
func (e *Engine) SetOverloaded(v bool) { e.overloaded.Store(v) }

// Overloaded reports whether adaptive throttling is currently active.
func (e *Engine) Overloaded() bool { return e.overloaded.Load() }

// Limits returns a copy of the currently active static policy set.
func (e *Engine) Limits() Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

// Guard is returned by Admit and releases every held resource exactly once
// regardless of which exit path (success, error, panic, context
// cancellation) the caller takes. Callers must `defer guard.Release()`
// immediately after a successful Admit.
type Guard struct {
	e         *Engine
	class     query.Class
	sem       chan struct{}
	queued    bool
	acquired  bool
	released  bool
}

// Release drops the queue-depth slot and the class-semaphore permit this
// guard holds, if any. Safe to call multiple times.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	if g.acquired {
		<-g.sem
	}
	if g.queued {
		atomic.AddInt64(&g.e.queuedRequests, -1)
	}
}

// EstimatedBytes computes the serialization-budget pre-check estimate:
// limit * (32 + selected_fields * 32), matching the byte model used to
// reject requests before they reach the serving core.
func EstimatedBytes(limit int, selectedFields int) int64 {
	return int64(limit) * int64(32+selectedFields*32)
}

// Admit runs the full admission sequence for one request: queue-depth gate,
// then per-class semaphore, then serialization-budget check. On success it
// returns a Guard the caller must Release; on rejection it returns the
// typed error envelope code directly usable for the HTTP response.
func (e *Engine) Admit(ctx context.Context, class query.Class, limit int, selectedFields int) (*Guard, apierrors.Envelope, bool) {
	limits := e.Limits()

	depth := atomic.AddInt64(&e.queuedRequests, 1)
	if depth > limits.MaxRequestQueueDepth {
		atomic.AddInt64(&e.queuedRequests, -1)
		return nil, apierrors.New(apierrors.QueryRejectedByPolicy, "request queue depth exceeded", requestIDFrom(ctx), map[string]any{
			"depth": depth - 1,
			"max":   limits.MaxRequestQueueDepth,
		}), false
	}
	guard := &Guard{e: e, class: class, queued: true}

	sem := e.semaphoreFor(class)
	guard.sem = sem
	select {
	case sem <- struct{}{}:
		guard.acquired = true
	default:
		guard.Release()
		return nil, apierrors.New(apierrors.QueryRejectedByPolicy, "class concurrency limit exceeded", requestIDFrom(ctx), map[string]any{
			"class": string(class),
		}), false
	}

	effectiveLimit := limit
	if e.Overloaded() && class == query.ClassHeavy {
		effectiveLimit = int(float64(limits.HeavyProjectionLimit) * limits.AdaptiveHeavyLimitFactor)
		if limit < effectiveLimit {
			effectiveLimit = limit
		}
	}

	estimated := EstimatedBytes(effectiveLimit, selectedFields)
	if estimated > limits.MaxSerializationBytes {
		guard.Release()
		return nil, apierrors.New(apierrors.QueryRejectedByPolicy, "estimated response exceeds serialization budget", requestIDFrom(ctx), map[string]any{
			"estimated_bytes": estimated,
			"max":             limits.MaxSerializationBytes,
		}), false
	}

	return guard, apierrors.Envelope{}, true
}

func (e *Engine) semaphoreFor(class query.Class) chan struct{} {
	switch class {
	case query.ClassCheap:
		return e.cheap
	case query.ClassMedium:
		return e.medium
	default:
		return e.heavy
	}
}

type requestIDCtxKey struct{}

// ContextWithRequestID and requestIDFrom mirror the typed context-key
// pattern used across the serving core to avoid depending directly on the
// telemetry package's own (differently scoped) key type.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDCtxKey{}).(string); ok && v != "" {
		return v
	}
	return "req-unknown"
}
