package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/bijux/atlas/pkg/model"
)

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) Get(ctx context.Context, objectKey string) ([]byte, error) {
	b, ok := f.objects[objectKey]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (f *fakeStore) Head(ctx context.Context, objectKey string) (int64, error) {
	b, ok := f.objects[objectKey]
	if !ok {
		return 0, errors.New("not found")
	}
	return int64(len(b)), nil
}

func testDataset(t *testing.T) model.DatasetID {
	t.Helper()
	ds, err := model.NewDatasetID("110", "homo_sapiens", "GRCh38")
	if err != nil {
		t.Fatalf("NewDatasetID: %v", err)
	}
	return ds
}

func TestObjectKeyMatchesLayout(t *testing.T) {
	ds := testDataset(t)
	got := ObjectKey(ds, KindManifest)
	want := "release=110/species=homo_sapiens/assembly=GRCh38/derived/manifest.json"
	if got != want {
		t.Fatalf("ObjectKey = %q, want %q", got, want)
	}
}

func TestFetchVerifiesChecksum(t *testing.T) {
	ds := testDataset(t)
	data := []byte(`{"ok":true}`)
	store := &fakeStore{objects: map[string][]byte{
		ObjectKey(ds, KindManifest): data,
	}}
	mgr, err := NewManager(store, ManagerOptions{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	sum := sha256.Sum256(data)
	wantSHA := hex.EncodeToString(sum[:])

	ref, got, err := mgr.Fetch(context.Background(), ds, KindManifest, wantSHA)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
	if ref.SHA256 != wantSHA {
		t.Fatalf("ref.SHA256 = %q, want %q", ref.SHA256, wantSHA)
	}
}

func TestFetchRejectsChecksumMismatch(t *testing.T) {
	ds := testDataset(t)
	store := &fakeStore{objects: map[string][]byte{
		ObjectKey(ds, KindManifest): []byte("actual bytes"),
	}}
	mgr, err := NewManager(store, ManagerOptions{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, _, err = mgr.Fetch(context.Background(), ds, KindManifest, "deadbeef")
	if !errors.Is(err, ErrArtifactChecksum) {
		t.Fatalf("expected ErrArtifactChecksum, got %v", err)
	}
}

func TestFetchRejectsOversizedArtifact(t *testing.T) {
	ds := testDataset(t)
	store := &fakeStore{objects: map[string][]byte{
		ObjectKey(ds, KindGeneSummary): make([]byte, 1024),
	}}
	mgr, err := NewManager(store, ManagerOptions{MaxBytes: 100})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, _, err = mgr.Fetch(context.Background(), ds, KindGeneSummary, "")
	if !errors.Is(err, ErrArtifactTooLarge) {
		t.Fatalf("expected ErrArtifactTooLarge, got %v", err)
	}
}
