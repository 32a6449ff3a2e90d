package middleware

import (
	"net/http"

	apierrors "github.com/bijux/atlas/pkg/errors"
	"github.com/bijux/atlas/pkg/telemetry"
)

// Recoverer converts a panic in any downstream handler into a bounded
// Internal error envelope instead of taking down the server.
func Recoverer(logger *telemetry.Logger, requestIDOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logger != nil {
						logger.Error(r.Context(), "panic recovered", map[string]any{"panic": rec, "path": r.URL.Path})
					}
					apierrors.WriteHTTP(w, apierrors.New(apierrors.Internal, "internal server error", requestIDOf(r), nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
