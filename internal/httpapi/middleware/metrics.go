package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/bijux/atlas/pkg/telemetry"
)

// statusRecorder wraps a ResponseWriter to capture the status code a
// handler actually wrote, defaulting to 200 for handlers that never call
// WriteHeader explicitly.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Metrics records a request counter and a request-duration histogram for
// every request that reaches it, labeled by method, route template, and
// response status. Route template (rather than raw path) keeps label
// cardinality bounded to the routes registered in NewRouter, not the
// unbounded set of path values clients may send.
func Metrics(meter telemetry.Meter) func(http.Handler) http.Handler {
	buckets := telemetry.DefaultHistogramBuckets()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start).Seconds()

			labels := telemetry.Labels{
				"method": r.Method,
				"route":  routeTemplate(r),
				"status": strconv.Itoa(rec.status),
			}
			_ = telemetry.IncCounter(meter, r.Context(), "atlas_http_requests_total", 1, labels)
			_ = telemetry.ObserveHistogram(meter, r.Context(), "atlas_http_request_duration_seconds", elapsed, buckets, labels)
		})
	}
}

// routeTemplate returns the matched mux route's path template, falling back
// to the raw URL path when no route matched (e.g. a 404).
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil && tmpl != "" {
			return tmpl
		}
	}
	return r.URL.Path
}
