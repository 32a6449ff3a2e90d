package telemetry

import (
	"testing"
	"time"
)

func TestNewHealthSnapshotComputesWorstOverall(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	snap, err := NewHealthSnapshot("atlas-server", "prod", []ComponentStatus{
		{Name: "cache", Status: StatusOK, CheckedAt: now},
		{Name: "registry:primary", Status: StatusDegraded, CheckedAt: now},
	}, now)
	if err != nil {
		t.Fatalf("NewHealthSnapshot: %v", err)
	}
	if snap.Overall != StatusDegraded {
		t.Fatalf("expected overall degraded, got %s", snap.Overall)
	}
	if snap.Hash == "" {
		t.Fatalf("expected non-empty hash")
	}
}

func TestHealthSnapshotDedupesComponents(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	snap, err := NewHealthSnapshot("atlas-server", "prod", []ComponentStatus{
		{Name: "cache", Status: StatusOK, CheckedAt: now},
		{Name: "Cache", Status: StatusFatal, CheckedAt: now},
	}, now)
	if err != nil {
		t.Fatalf("NewHealthSnapshot: %v", err)
	}
	if len(snap.Components) != 1 {
		t.Fatalf("expected dedupe to 1 component, got %d", len(snap.Components))
	}
	found := false
	for _, w := range snap.Warnings {
		if w.Code == "dedupe.component" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dedupe.component warning")
	}
}

func TestStableHashDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a, err := NewHealthSnapshot("atlas-server", "prod", []ComponentStatus{{Name: "cache", Status: StatusOK, CheckedAt: now}}, now)
	if err != nil {
		t.Fatalf("NewHealthSnapshot: %v", err)
	}
	b, err := NewHealthSnapshot("atlas-server", "prod", []ComponentStatus{{Name: "cache", Status: StatusOK, CheckedAt: now}}, now)
	if err != nil {
		t.Fatalf("NewHealthSnapshot: %v", err)
	}
	if a.Hash != b.Hash {
		t.Fatalf("expected identical hashes for identical inputs")
	}
}
