package catalog

import (
	"testing"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/model"
)

func TestMakePlanKeepsCatalogAndPinsOnly(t *testing.T) {
	s, err := store.NewLocalStore(store.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	kept := mustDataset(t, "110", "homo_sapiens", "GRCh38")
	pinned := mustDataset(t, "109", "homo_sapiens", "GRCh38")
	orphan := mustDataset(t, "108", "homo_sapiens", "GRCh38")

	for _, ds := range []model.DatasetID{kept, pinned, orphan} {
		if err := s.Put(artifact.ObjectKey(ds, artifact.KindManifest), []byte("{}")); err != nil {
			t.Fatalf("put manifest: %v", err)
		}
	}
	if err := s.Put("stray/garbage.json", []byte("{}")); err != nil {
		t.Fatalf("put stray: %v", err)
	}

	cat := model.Catalog{Entries: []model.CatalogEntry{EntryFor(kept)}}
	pins := []Pin{{Dataset: &pinned}}

	plan, err := MakePlan(s, cat, pins)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	keepSet := map[string]bool{}
	for _, k := range plan.Keep {
		keepSet[k] = true
	}
	if !keepSet[artifact.ObjectKey(kept, artifact.KindManifest)] {
		t.Errorf("catalog-referenced manifest should be kept")
	}
	if !keepSet[artifact.ObjectKey(pinned, artifact.KindManifest)] {
		t.Errorf("pinned dataset manifest should be kept")
	}

	removeSet := map[string]bool{}
	for _, k := range plan.Remove {
		removeSet[k] = true
	}
	if !removeSet[artifact.ObjectKey(orphan, artifact.KindManifest)] {
		t.Errorf("orphan manifest should be planned for removal")
	}
	if !removeSet["stray/garbage.json"] {
		t.Errorf("untracked object should be planned for removal")
	}
}

func TestApplyRequiresConfirmation(t *testing.T) {
	s, err := store.NewLocalStore(store.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.Put("stray/garbage.json", []byte("{}")); err != nil {
		t.Fatalf("put stray: %v", err)
	}
	plan, err := MakePlan(s, model.Catalog{}, nil)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if _, err := Apply(s, plan, false); err == nil {
		t.Fatalf("expected Apply to refuse without confirmation")
	}

	removed, err := Apply(s, plan, true)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if removed != len(plan.Remove) {
		t.Errorf("removed = %d, want %d", removed, len(plan.Remove))
	}
}

func TestRefuseIfServerEnvironment(t *testing.T) {
	t.Setenv("ATLAS_SERVER_CONTAINER", "1")
	if err := RefuseIfServerEnvironment(); err == nil {
		t.Errorf("expected refusal when ATLAS_SERVER_CONTAINER=1")
	}
	t.Setenv("ATLAS_SERVER_CONTAINER", "")

	t.Setenv("ATLAS_RUNTIME_ROLE", "server")
	if err := RefuseIfServerEnvironment(); err == nil {
		t.Errorf("expected refusal when ATLAS_RUNTIME_ROLE=server")
	}
}
