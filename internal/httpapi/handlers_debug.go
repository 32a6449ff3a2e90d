package httpapi

import (
	"io"
	"net/http"

	apierrors "github.com/bijux/atlas/pkg/errors"
	"github.com/bijux/atlas/pkg/model"
)

// handleDebugDatasets lists every dataset currently resident in the cache
// manager's working set, gated behind enable_debug_datasets since it
// exposes operational memory/disk state rather than served data.
func (a *App) handleDebugDatasets(w http.ResponseWriter, r *http.Request) {
	cached := a.Cache.CachedDatasetsDebug()
	items := make([]map[string]any, 0, len(cached))
	for _, c := range cached {
		items = append(items, map[string]any{"dataset": c.Dataset, "bytes": c.Bytes})
	}
	writeEnvelope(w, r, Envelope{Data: ListData{Items: items}}, CatalogDiscovery)
}

// handleDebugDatasetHealth reports the cache/circuit-breaker/quarantine
// state for one dataset named by "dataset=release=R&species=S&assembly=A".
func (a *App) handleDebugDatasetHealth(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("dataset")
	dataset, err := model.ParseDatasetKey(raw)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.InvalidQueryParameter, err.Error(), requestID(r), map[string]any{"parameter": "dataset"}))
		return
	}
	snap, err := a.Cache.DatasetHealthSnapshot(r.Context(), dataset)
	if err != nil {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.UpstreamStoreUnavailable, err.Error(), requestID(r), nil))
		return
	}
	writeEnvelope(w, r, Envelope{Data: map[string]any{
		"cached":                 snap.Cached,
		"checksum_verified":      snap.ChecksumVerified,
		"last_open_seconds_ago":  snap.LastOpenSecondsAgo,
		"size_bytes":             snap.SizeBytes,
		"open_failures":          snap.OpenFailures,
		"quarantined":            snap.Quarantined,
	}}, CatalogDiscovery)
}

// handleDebugRegistryHealth reports per-source reachability for the
// federated registry backing the cache manager.
func (a *App) handleDebugRegistryHealth(w http.ResponseWriter, r *http.Request) {
	health := a.Cache.RegistryHealth()
	items := make([]map[string]any, 0, len(health))
	for _, h := range health {
		items = append(items, map[string]any{
			"name":       h.Name,
			"reachable":  h.Reachable,
			"last_error": h.LastError,
		})
	}
	writeEnvelope(w, r, Envelope{Data: map[string]any{
		"sources":                  items,
		"refresh_age_seconds":      a.Cache.RegistryRefreshAgeSeconds(),
		"cached_only_mode":         a.Cache.CachedOnlyMode(),
		"registry_freeze_mode":     a.Cache.RegistryFreezeMode(),
		"catalog_epoch":            a.Cache.CatalogEpoch(),
	}}, CatalogDiscovery)
}

// handleDebugEcho echoes the request method, query, and a bounded prefix of
// the body back to the caller, for exercising the middleware chain (request
// id propagation, CORS, rate limiting) without touching any dataset.
func (a *App) handleDebugEcho(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
	writeEnvelope(w, r, Envelope{Data: map[string]any{
		"method": r.Method,
		"query":  r.URL.RawQuery,
		"body":   string(body),
	}}, CatalogDiscovery)
}
