package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/bijux/atlas/internal/httpapi/middleware"
	apierrors "github.com/bijux/atlas/pkg/errors"
)

// NewRouter builds the full gorilla/mux router for a, wiring every v1
// endpoint and debug route behind the standard middleware chain:
// request-id propagation first (so every later layer, including the
// recoverer, can log/echo it), then request metrics (so every response,
// including drain/CORS/rate-limit rejections, is counted), then the drain
// gate (while a.Draining(), /v1/ requests get QueryRejectedByPolicy), then
// CORS, then rate limiting, then panic recovery innermost so it wraps the
// actual handler.
func NewRouter(a *App, corsCfg middleware.CORSConfig) *mux.Router {
	r := mux.NewRouter()

	const datasetPrefix = "/v1/datasets/{release}/{species}/{assembly}"

	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/healthz/overload", a.handleHealthzOverload).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.handleReadyz).Methods(http.MethodGet)
	r.HandleFunc("/metrics", a.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/v1/version", a.handleVersion).Methods(http.MethodGet)

	r.HandleFunc("/v1/datasets", a.handleListDatasets).Methods(http.MethodGet)
	r.HandleFunc(datasetPrefix, a.handleGetDataset).Methods(http.MethodGet)
	// Pre-v1 alias: the nested releases/species/assemblies shape, kept for
	// clients that predate the flat dataset-path redesign.
	r.HandleFunc("/v1/releases/{release}/species/{species}/assemblies/{assembly}", a.handleDeprecatedDatasetAlias).Methods(http.MethodGet)

	r.HandleFunc(datasetPrefix+"/genes", a.handleListGenes).Methods(http.MethodGet)
	r.HandleFunc(datasetPrefix+"/genes/count", a.handleGeneCount).Methods(http.MethodGet)
	r.HandleFunc(datasetPrefix+"/genes/{gene_id}", a.handleGeneByID).Methods(http.MethodGet)
	r.HandleFunc(datasetPrefix+"/genes/{gene_id}/transcripts", a.handleGeneTranscripts).Methods(http.MethodGet)
	r.HandleFunc(datasetPrefix+"/genes/{gene_id}/sequence", a.handleGeneSequence).Methods(http.MethodGet)
	r.HandleFunc(datasetPrefix+"/transcripts/{tx_id}", a.handleTranscriptByID).Methods(http.MethodGet)
	r.HandleFunc(datasetPrefix+"/sequence/region", a.handleSequenceRegion).Methods(http.MethodGet)
	r.HandleFunc(datasetPrefix+"/diff/genes", a.handleDiffGenes).Methods(http.MethodGet)
	r.HandleFunc(datasetPrefix+"/diff/region", a.handleDiffRegion).Methods(http.MethodGet)

	if a.Config.Policy.EnableDebugDatasets {
		r.HandleFunc("/debug/datasets", a.handleDebugDatasets).Methods(http.MethodGet)
		r.HandleFunc("/debug/dataset-health", a.handleDebugDatasetHealth).Methods(http.MethodGet)
		r.HandleFunc("/debug/registry-health", a.handleDebugRegistryHealth).Methods(http.MethodGet)
		r.HandleFunc("/debug/echo", a.handleDebugEcho).Methods(http.MethodGet, http.MethodPost)
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics(a.Meter))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if a.Draining() && strings.HasPrefix(req.URL.Path, "/v1/") {
				apierrors.WriteHTTP(w, apierrors.New(apierrors.QueryRejectedByPolicy, "server draining", requestID(req), nil))
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.RateLimit(a.Limiter, middleware.RequestIDFromRequest))
	r.Use(middleware.Recoverer(a.Logger, middleware.RequestIDFromRequest))

	return r
}
