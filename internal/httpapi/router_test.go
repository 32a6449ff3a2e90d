package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bijux/atlas/internal/httpapi/middleware"
	"github.com/bijux/atlas/pkg/config"
)

func newTestApp() *App {
	return NewApp(config.AtlasConfig{}, nil, nil, nil, nil, nil, nil)
}

func TestHealthzReportsOK(t *testing.T) {
	router := NewRouter(newTestApp(), middleware.DefaultCORSConfig())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Errorf("expected X-Request-Id to be set by the request-id middleware")
	}
	var body struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Data.Status)
	}
}

func TestVersionReportsBuildVersion(t *testing.T) {
	Version = "test-version"
	router := NewRouter(newTestApp(), middleware.DefaultCORSConfig())
	req := httptest.NewRequest(http.MethodGet, "/v1/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data struct {
			Version string `json:"version"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data.Version != "test-version" {
		t.Errorf("version = %q, want test-version", body.Data.Version)
	}
}

func TestReadyzReportsUnavailableWhileDraining(t *testing.T) {
	app := newTestApp()
	app.SetDraining(true)
	router := NewRouter(app, middleware.DefaultCORSConfig())
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 while draining", rec.Code)
	}
}

func TestDebugRoutesDisabledByDefault(t *testing.T) {
	router := NewRouter(newTestApp(), middleware.DefaultCORSConfig())
	req := httptest.NewRequest(http.MethodGet, "/debug/datasets", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (debug routes gated by config)", rec.Code)
	}
}
