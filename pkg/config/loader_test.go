package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoaderDecodesYAMLSameAsEquivalentJSON(t *testing.T) {
	jsonDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(jsonDir, "atlas-server.json"), []byte(`{"policy":{"max_limit":75},"cache":{"max_entries":4}}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	yamlDir := t.TempDir()
	yamlDoc := "policy:\n  max_limit: 75\ncache:\n  max_entries: 4\n"
	if err := os.WriteFile(filepath.Join(yamlDir, "atlas-server.yaml"), []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	jsonLoader, err := NewLoader(jsonDir, Options{Service: "atlas-server"})
	if err != nil {
		t.Fatalf("NewLoader(json): %v", err)
	}
	yamlLoader, err := NewLoader(yamlDir, Options{Service: "atlas-server"})
	if err != nil {
		t.Fatalf("NewLoader(yaml): %v", err)
	}

	jsonBundle, err := jsonLoader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load(json): %v", err)
	}
	yamlBundle, err := yamlLoader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load(yaml): %v", err)
	}

	jsonCfg, err := DecodeAtlasConfig(jsonBundle)
	if err != nil {
		t.Fatalf("DecodeAtlasConfig(json): %v", err)
	}
	yamlCfg, err := DecodeAtlasConfig(yamlBundle)
	if err != nil {
		t.Fatalf("DecodeAtlasConfig(yaml): %v", err)
	}

	if jsonCfg.Policy.MaxLimit != yamlCfg.Policy.MaxLimit {
		t.Fatalf("max_limit mismatch: json=%d yaml=%d", jsonCfg.Policy.MaxLimit, yamlCfg.Policy.MaxLimit)
	}
	if jsonCfg.Cache.MaxEntries != yamlCfg.Cache.MaxEntries {
		t.Fatalf("max_entries mismatch: json=%d yaml=%d", jsonCfg.Cache.MaxEntries, yamlCfg.Cache.MaxEntries)
	}
	if yamlCfg.Policy.MaxLimit != 75 || yamlCfg.Cache.MaxEntries != 4 {
		t.Fatalf("unexpected yaml-derived config: %+v", yamlCfg)
	}
}

func TestLoaderRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "atlas-server.yaml"), []byte("policy:\n  max_limit: [unterminated\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	l, err := NewLoader(dir, Options{Service: "atlas-server"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatalf("expected an error loading malformed yaml, got nil")
	}
}

func TestLoaderRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLoader(dir, Options{Service: "atlas-server"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if _, err := l.LoadFile(context.Background(), "../outside.json"); err == nil {
		t.Fatalf("expected path escape rejection, got nil")
	}
}

func TestLoaderRejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "atlas-server.toml"), []byte("max_limit = 1"), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	l, err := NewLoader(dir, Options{Service: "atlas-server", ExplicitPath: "atlas-server.toml"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatalf("expected unsupported extension rejection, got nil")
	}
}
