package catalog

import (
	"testing"

	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/model"
)

func TestWriterPublishUpsertsAndSorts(t *testing.T) {
	s, err := store.NewLocalStore(store.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	w := NewWriter(s)

	b := mustDataset(t, "111", "homo_sapiens", "GRCh38")
	a := mustDataset(t, "110", "homo_sapiens", "GRCh38")

	cat, err := w.Publish(model.Catalog{}, EntryFor(b))
	if err != nil {
		t.Fatalf("publish b: %v", err)
	}
	cat, err = w.Publish(cat, EntryFor(a))
	if err != nil {
		t.Fatalf("publish a: %v", err)
	}
	if len(cat.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(cat.Entries))
	}
	if cat.Entries[0].Dataset.CanonicalString() != a.CanonicalString() {
		t.Errorf("entries[0] = %s, want %s (sorted first)", cat.Entries[0].Dataset.CanonicalString(), a.CanonicalString())
	}
	if !cat.ValidateSorted() {
		t.Errorf("published catalog failed validate_sorted")
	}

	// Re-publishing a replaces, it does not duplicate.
	cat, err = w.Publish(cat, EntryFor(a))
	if err != nil {
		t.Fatalf("re-publish a: %v", err)
	}
	if len(cat.Entries) != 2 {
		t.Fatalf("entries after re-publish = %d, want 2 (no duplicate)", len(cat.Entries))
	}
}
