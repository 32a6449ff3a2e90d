package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
)

// LocalOptions configures a LocalStore.
type LocalOptions struct {
	Root         string
	MaxBodyBytes int64
}

// LocalStore is a filesystem-backed Backend rooted at a single directory.
// Object keys are resolved relative to Root and path-escape checked before
// every read, mirroring the containment discipline used by the config
// loader's safeJoin.
type LocalStore struct {
	root string
	opts LocalOptions
}

func NewLocalStore(opts LocalOptions) (*LocalStore, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, fmt.Errorf("%w: root required", ErrInvalid)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 * 1024 * 1024 * 1024
	}
	return &LocalStore{root: abs, opts: opts}, nil
}

func (s *LocalStore) resolve(objectKey string) (string, error) {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" || strings.Contains(objectKey, "..") {
		return "", fmt.Errorf("%w: invalid object key %q", ErrInvalid, objectKey)
	}
	abs := filepath.Join(s.root, filepath.FromSlash(objectKey))
	rootWithSep := s.root + string(filepath.Separator)
	if abs != s.root && !strings.HasPrefix(abs, rootWithSep) {
		return "", fmt.Errorf("%w: object key escapes root", ErrInvalid)
	}
	return abs, nil
}

func (s *LocalStore) Get(ctx context.Context, objectKey string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := s.resolve(objectKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, objectKey)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer f.Close()
	r := io.LimitReader(f, s.opts.MaxBodyBytes+1)
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if int64(len(b)) > s.opts.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, objectKey)
	}
	return b, nil
}

func (s *LocalStore) Head(ctx context.Context, objectKey string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	abs, err := s.resolve(objectKey)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, objectKey)
		}
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return fi.Size(), nil
}

func (s *LocalStore) Put(objectKey string, data []byte) error {
	abs, err := s.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %v", ErrTransport, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	return nil
}

const catalogObjectKey = "catalog.json"

func (s *LocalStore) FetchCatalog(ctx context.Context, ifNoneMatchETag string) (CatalogFetch, error) {
	b, err := s.Get(ctx, catalogObjectKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CatalogFetch{Status: CatalogUpdated, ETag: canonicaljson.SHA256Hex(nil), Catalog: model.Catalog{}}, nil
		}
		return CatalogFetch{}, err
	}
	etag := canonicaljson.SHA256Hex(b)
	if ifNoneMatchETag != "" && ifNoneMatchETag == etag {
		return CatalogFetch{Status: CatalogNotModified, ETag: etag}, nil
	}
	var cat model.Catalog
	if err := json.Unmarshal(b, &cat); err != nil {
		return CatalogFetch{}, fmt.Errorf("%w: decode catalog: %v", ErrTransport, err)
	}
	return CatalogFetch{Status: CatalogUpdated, ETag: etag, Catalog: cat}, nil
}

func (s *LocalStore) FetchManifest(ctx context.Context, dataset model.DatasetID) (model.Manifest, error) {
	b, err := s.Get(ctx, artifact.ObjectKey(dataset, artifact.KindManifest))
	if err != nil {
		return model.Manifest{}, err
	}
	var m model.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return model.Manifest{}, fmt.Errorf("%w: decode manifest: %v", ErrTransport, err)
	}
	return m, nil
}

func (s *LocalStore) FetchSQLiteBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return s.Get(ctx, artifact.ObjectKey(dataset, artifact.KindGeneSummary))
}

func (s *LocalStore) FetchFASTABytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return s.Get(ctx, dataset.DerivedDir()+"/sequence.fasta")
}

func (s *LocalStore) FetchFAIBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return s.Get(ctx, dataset.DerivedDir()+"/sequence.fasta.fai")
}

func (s *LocalStore) FetchReleaseGeneIndexBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error) {
	return s.Get(ctx, artifact.ObjectKey(dataset, artifact.KindReleaseGeneIndex))
}

// RegistryHealth reports a single synthetic "local" source, always reachable
// once the root directory is confirmed to exist.
func (s *LocalStore) RegistryHealth(ctx context.Context) []SourceHealth {
	reachable := true
	lastErr := ""
	if _, err := os.Stat(s.root); err != nil {
		reachable = false
		lastErr = err.Error()
	}
	return []SourceHealth{{Name: "local", Reachable: reachable, LastError: lastErr}}
}

func (s *LocalStore) BackendTag() string { return "local" }

// Walk calls fn once per regular file under root, with objectKey the
// slash-separated path relative to root (the same form Get/Put expect).
// Used by garbage collection to enumerate candidates for deletion.
func (s *LocalStore) Walk(fn func(objectKey string) error) error {
	return filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

// Delete removes the file at objectKey after resolving and containment
// checking it the same way Get/Put do. Deleting an already-absent object
// key is not an error.
func (s *LocalStore) Delete(objectKey string) error {
	abs, err := s.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove: %v", ErrTransport, err)
	}
	return nil
}
