package catalog

import (
	"context"
	"testing"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/internal/store"
	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
)

func mustDataset(t *testing.T, release, species, assembly string) model.DatasetID {
	t.Helper()
	d, err := model.NewDatasetIDNormalized(release, species, assembly)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	return d
}

func putIndex(t *testing.T, s *store.LocalStore, dataset model.DatasetID, entries []model.GeneIndexEntry) {
	t.Helper()
	idx := model.GeneIndex{Entries: entries}
	idx.Sort()
	b, err := canonicaljson.Marshal(idx)
	if err != nil {
		t.Fatalf("marshal index: %v", err)
	}
	key := artifact.ObjectKey(dataset, artifact.KindReleaseGeneIndex)
	if err := s.Put(key, b); err != nil {
		t.Fatalf("put index: %v", err)
	}
}

func TestDiffAddedRemovedChanged(t *testing.T) {
	s, err := store.NewLocalStore(store.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	a := mustDataset(t, "110", "homo_sapiens", "GRCh38")
	b := mustDataset(t, "111", "homo_sapiens", "GRCh38")

	putIndex(t, s, a, []model.GeneIndexEntry{
		{GeneID: "g1", SeqID: "1", Start: 100, End: 200, SignatureSHA256: "sig1"},
		{GeneID: "g2", SeqID: "1", Start: 300, End: 400, SignatureSHA256: "sig2"},
		{GeneID: "g3", SeqID: "2", Start: 50, End: 150, SignatureSHA256: "sig3"},
	})
	putIndex(t, s, b, []model.GeneIndexEntry{
		{GeneID: "g1", SeqID: "1", Start: 100, End: 250, SignatureSHA256: "sig1-new"}, // coords + signature changed
		{GeneID: "g3", SeqID: "2", Start: 50, End: 150, SignatureSHA256: "sig3"},      // unchanged
		{GeneID: "g4", SeqID: "3", Start: 10, End: 20, SignatureSHA256: "sig4"},       // added
	})

	result, err := Diff(context.Background(), s, a, b, nil, nil)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if got, want := result.Added, []string{"g4"}; !equalStrings(got, want) {
		t.Errorf("added = %v, want %v", got, want)
	}
	if got, want := result.Removed, []string{"g2"}; !equalStrings(got, want) {
		t.Errorf("removed = %v, want %v", got, want)
	}
	if got, want := result.ChangedByCoords, []string{"g1"}; !equalStrings(got, want) {
		t.Errorf("changed_by_coords = %v, want %v", got, want)
	}
	if got, want := result.ChangedBySignature, []string{"g1"}; !equalStrings(got, want) {
		t.Errorf("changed_by_signature = %v, want %v", got, want)
	}
	if len(result.ChangedByBiotype) != 0 {
		t.Errorf("changed_by_biotype = %v, want empty (no gene stores supplied)", result.ChangedByBiotype)
	}
}

func TestDiffIsDeterministicAcrossRuns(t *testing.T) {
	s, err := store.NewLocalStore(store.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	a := mustDataset(t, "110", "homo_sapiens", "GRCh38")
	b := mustDataset(t, "111", "homo_sapiens", "GRCh38")
	putIndex(t, s, a, []model.GeneIndexEntry{{GeneID: "g1", SeqID: "1", Start: 1, End: 2, SignatureSHA256: "x"}})
	putIndex(t, s, b, []model.GeneIndexEntry{
		{GeneID: "g2", SeqID: "1", Start: 3, End: 4, SignatureSHA256: "y"},
		{GeneID: "g1", SeqID: "1", Start: 1, End: 2, SignatureSHA256: "x"},
	})

	r1, err := Diff(context.Background(), s, a, b, nil, nil)
	if err != nil {
		t.Fatalf("diff 1: %v", err)
	}
	doc1, err := Materialize(s, "diff", r1, DefaultMaxInlineItems)
	if err != nil {
		t.Fatalf("materialize 1: %v", err)
	}

	r2, err := Diff(context.Background(), s, a, b, nil, nil)
	if err != nil {
		t.Fatalf("diff 2: %v", err)
	}
	doc2, err := Materialize(s, "diff", r2, DefaultMaxInlineItems)
	if err != nil {
		t.Fatalf("materialize 2: %v", err)
	}

	if doc1.SHA256 != doc2.SHA256 {
		t.Fatalf("diff materialization is not deterministic: %s != %s", doc1.SHA256, doc2.SHA256)
	}
}

func TestMaterializeChunksOversizedFields(t *testing.T) {
	s, err := store.NewLocalStore(store.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	a := mustDataset(t, "110", "homo_sapiens", "GRCh38")
	b := mustDataset(t, "111", "homo_sapiens", "GRCh38")
	added := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		added = append(added, string(rune('a'+i)))
	}
	result := Result{DatasetA: a, DatasetB: b, Added: added}

	doc, err := Materialize(s, "diff/110-111", result, 3)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if !doc.Added.Truncated {
		t.Fatalf("expected added field to be truncated")
	}
	if doc.Added.TotalCount != 10 {
		t.Errorf("total_count = %d, want 10", doc.Added.TotalCount)
	}
	wantChunks := 4 // ceil(10/3)
	if len(doc.Chunks) != wantChunks {
		t.Errorf("chunks = %d, want %d", len(doc.Chunks), wantChunks)
	}
	for _, c := range doc.Chunks {
		if _, err := s.Get(context.Background(), c.Path); err != nil {
			t.Errorf("chunk %s not written: %v", c.Path, err)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
