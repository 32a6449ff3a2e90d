package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDecodeAtlasConfigKeepsDefaultsWhenNoFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLoader(dir, Options{Service: "atlas-server"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	bundle, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := DecodeAtlasConfig(bundle)
	if err != nil {
		t.Fatalf("DecodeAtlasConfig: %v", err)
	}
	if cfg.Policy.MaxLimit != DefaultAtlasConfig().Policy.MaxLimit {
		t.Fatalf("expected default max_limit, got %d", cfg.Policy.MaxLimit)
	}
	if cfg.Store.Backend != StoreBackendLocal {
		t.Fatalf("expected default local store backend, got %s", cfg.Store.Backend)
	}
}

func TestDecodeAtlasConfigOverlaysBaseFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "atlas-server.json"), []byte(`{"policy":{"max_limit":50},"store":{"backend":"s3","s3_bucket":"atlas-artifacts"}}`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	l, err := NewLoader(dir, Options{Service: "atlas-server"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	bundle, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := DecodeAtlasConfig(bundle)
	if err != nil {
		t.Fatalf("DecodeAtlasConfig: %v", err)
	}
	if cfg.Policy.MaxLimit != 50 {
		t.Fatalf("expected overridden max_limit=50, got %d", cfg.Policy.MaxLimit)
	}
	if cfg.Store.Backend != StoreBackendS3 || cfg.Store.S3Bucket != "atlas-artifacts" {
		t.Fatalf("expected s3 store overlay, got %+v", cfg.Store)
	}
	if cfg.Concurrency.CheapSlots != DefaultAtlasConfig().Concurrency.CheapSlots {
		t.Fatalf("expected untouched concurrency defaults to survive merge")
	}
}

func TestEnvOverrideWinsOverBaseFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "atlas-server.json"), []byte(`{"policy":{"max_limit":50}}`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	t.Setenv("ATLAS_SERVER_POLICY__MAX_LIMIT", "99")
	l, err := NewLoader(dir, Options{Service: "atlas-server"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	bundle, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := DecodeAtlasConfig(bundle)
	if err != nil {
		t.Fatalf("DecodeAtlasConfig: %v", err)
	}
	if cfg.Policy.MaxLimit != 99 {
		t.Fatalf("expected env override to win, got %d", cfg.Policy.MaxLimit)
	}
}
