// Package store implements the pluggable byte-addressable backends a
// dataset cache manager and federated registry read from: a local
// filesystem backend and an S3-compatible backend signed with a hand-rolled
// AWS SigV4 client (stdlib only). Both satisfy the same Backend capability
// interface so the cache manager and registry never know which transport is
// underneath.
package store

import (
	"context"
	"errors"

	"github.com/bijux/atlas/pkg/model"
)

var (
	ErrNotFound  = errors.New("store: object not found")
	ErrInvalid   = errors.New("store: invalid input")
	ErrTooLarge  = errors.New("store: object too large")
	ErrTransport = errors.New("store: transport error")
)

// CatalogFetchStatus distinguishes a conditional fetch's two outcomes.
type CatalogFetchStatus int

const (
	CatalogNotModified CatalogFetchStatus = iota
	CatalogUpdated
)

// CatalogFetch is the result of a conditional (If-None-Match) catalog GET.
type CatalogFetch struct {
	Status  CatalogFetchStatus
	ETag    string
	Catalog model.Catalog
}

// SourceHealth reports one backend's last-known reachability, surfaced on
// /healthz and the debug registry endpoint.
type SourceHealth struct {
	Name             string `json:"name"`
	Reachable        bool   `json:"reachable"`
	LastError        string `json:"last_error,omitempty"`
	ConsecutiveFails int    `json:"consecutive_fails"`
}

// Backend is the full capability set a store implementation exposes:
// object-key byte access (shared with internal/artifact.Store) plus the
// catalog/manifest-aware operations the cache manager and release-diff
// tooling need.
type Backend interface {
	// Get and Head satisfy internal/artifact.Store.
	Get(ctx context.Context, objectKey string) ([]byte, error)
	Head(ctx context.Context, objectKey string) (int64, error)

	FetchCatalog(ctx context.Context, ifNoneMatchETag string) (CatalogFetch, error)
	FetchManifest(ctx context.Context, dataset model.DatasetID) (model.Manifest, error)
	FetchSQLiteBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error)
	FetchFASTABytes(ctx context.Context, dataset model.DatasetID) ([]byte, error)
	FetchFAIBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error)
	FetchReleaseGeneIndexBytes(ctx context.Context, dataset model.DatasetID) ([]byte, error)

	RegistryHealth(ctx context.Context) []SourceHealth
	BackendTag() string
}
