package policy

import (
	"sync"
	"time"
)

// bucket is a single token-bucket state, keyed by client identity (IP hash
// or API key).
type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// RateLimiter enforces policy.rate_limit.{per_ip_rps, per_api_key_rps} with
// independent buckets per key, adaptive-scaled while the engine reports
// overload.
type RateLimiter struct {
	mu      sync.Mutex
	ratePerS float64
	burst    float64
	buckets  map[string]*bucket

	engine *Engine
}

// NewRateLimiter builds a limiter for the given steady-state rate and burst
// size. engine may be nil, in which case adaptive scaling is skipped.
func NewRateLimiter(ratePerSecond float64, burst float64, engine *Engine) *RateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 200
	}
	if burst <= 0 {
		burst = ratePerSecond
	}
	return &RateLimiter{
		ratePerS: ratePerSecond,
		burst:    burst,
		buckets:  make(map[string]*bucket),
		engine:   engine,
	}
}

// Allow consumes one token for key if available and reports whether the
// request should proceed, along with a retry-after duration when it
// shouldn't.
func (l *RateLimiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	rate := l.effectiveRate()

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastRefill: now, lastSeen: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = minFloat(l.burst, b.tokens+elapsed*rate)
		b.lastRefill = now
	}
	b.lastSeen = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}

	need := 1.0 - b.tokens
	secs := need / rate
	if secs < 0 {
		secs = 0
	}
	return false, time.Duration(secs * float64(time.Second))
}

func (l *RateLimiter) effectiveRate() float64 {
	if l.engine != nil && l.engine.Overloaded() {
		factor := l.engine.Limits().AdaptiveRateLimitFactor
		if factor > 0 {
			return l.ratePerS * factor
		}
	}
	return l.ratePerS
}

// Sweep removes buckets idle past cutoff, bounding memory under a long tail
// of one-off clients. Intended to run on a background ticker.
func (l *RateLimiter) Sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
