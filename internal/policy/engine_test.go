package policy

import (
	"context"
	"testing"

	"github.com/bijux/atlas/internal/query"
)

func TestAdmitRejectsWhenQueueDepthExceeded(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxRequestQueueDepth = 1
	e := New(limits, ModeStrict)
	ctx := context.Background()

	g1, _, ok1 := e.Admit(ctx, query.ClassCheap, 10, 1)
	if !ok1 {
		t.Fatalf("expected first admit to succeed")
	}
	defer g1.Release()

	_, env, ok2 := e.Admit(ctx, query.ClassCheap, 10, 1)
	if ok2 {
		t.Fatalf("expected second admit to be rejected by queue depth")
	}
	if env.Code != "QueryRejectedByPolicy" {
		t.Fatalf("expected QueryRejectedByPolicy, got %s", env.Code)
	}
}

func TestAdmitRejectsWhenClassBulkheadFull(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxRequestQueueDepth = 100
	limits.HeavyPermits = 1
	e := New(limits, ModeStrict)
	ctx := context.Background()

	g1, _, ok1 := e.Admit(ctx, query.ClassHeavy, 10, 1)
	if !ok1 {
		t.Fatalf("expected first heavy admit to succeed")
	}
	defer g1.Release()

	_, env, ok2 := e.Admit(ctx, query.ClassHeavy, 10, 1)
	if ok2 {
		t.Fatalf("expected second heavy admit to be rejected")
	}
	if env.Code != "QueryRejectedByPolicy" {
		t.Fatalf("expected QueryRejectedByPolicy, got %s", env.Code)
	}
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	limits := DefaultLimits()
	e := New(limits, ModeStrict)
	g, _, ok := e.Admit(context.Background(), query.ClassCheap, 10, 1)
	if !ok {
		t.Fatalf("expected admit to succeed")
	}
	g.Release()
	g.Release() // must not panic or double-decrement

	if got := len(e.cheap); got != 0 {
		t.Fatalf("expected semaphore drained, got %d in flight", got)
	}
}

func TestAdmitRejectsOverSerializationBudget(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxSerializationBytes = 100
	e := New(limits, ModeStrict)

	_, env, ok := e.Admit(context.Background(), query.ClassCheap, 500, 10)
	if ok {
		t.Fatalf("expected rejection over serialization budget")
	}
	if env.Code != "QueryRejectedByPolicy" {
		t.Fatalf("expected QueryRejectedByPolicy, got %s", env.Code)
	}
	if len(e.cheap) != 0 {
		t.Fatalf("expected the acquired permit to be released on budget rejection")
	}
}

func TestEvaluateAllCollectsAllViolations(t *testing.T) {
	rules := StaticRuleSet()
	resolved := map[string]any{
		"telemetry.metrics_enabled":      false,
		"telemetry.request_id_required":  true,
		"publish_gates.required_indexes": []any{},
	}
	violations := EvaluateAll(rules, resolved)
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d: %+v", len(violations), violations)
	}
}
