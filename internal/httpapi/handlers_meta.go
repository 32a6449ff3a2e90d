package httpapi

import (
	"net/http"

	apierrors "github.com/bijux/atlas/pkg/errors"
	"github.com/bijux/atlas/pkg/telemetry"
)

// handleHealthz reports the process is up, independent of any dataset or
// registry state.
func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, r, Envelope{Data: map[string]any{
		"status": "ok",
		"uptime_seconds": int64(a.Uptime().Seconds()),
	}}, CatalogDiscovery)
}

// handleHealthzOverload exposes the adaptive-throttling signal the policy
// engine currently reports.
func (a *App) handleHealthzOverload(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, r, Envelope{Data: map[string]any{
		"overloaded": a.Policy.Overloaded(),
	}}, CatalogDiscovery)
}

// handleReadyz reports 503/NotReady while draining and 200 otherwise; it
// does not check whether the catalog has been refreshed.
func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.Draining() {
		apierrors.WriteHTTP(w, apierrors.New(apierrors.NotReady, "server draining", requestID(r), nil))
		return
	}
	writeEnvelope(w, r, Envelope{Data: map[string]any{"status": "ready"}}, CatalogDiscovery)
}

// handleMetrics renders the request counters and latency histograms the
// middleware chain has recorded through a.Meter, in Prometheus text
// exposition. Meters that don't support export (the NopMeter default) fall
// back to an empty exposition body rather than erroring.
func (a *App) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	body := "# atlas metrics\n"
	if exp, ok := a.Meter.(telemetry.Exporter); ok {
		if text, err := exp.RenderText(); err == nil {
			body = text
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handleVersion reports the running build identifier.
func (a *App) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, r, Envelope{Data: map[string]any{"version": Version}}, CatalogDiscovery)
}
