package middleware

import (
	"net/http"

	"github.com/bijux/atlas/pkg/telemetry"
)

// RequestIDFromRequest reads the request-id RequestID already stamped onto
// r's context, falling back to the frozen "req-unknown" sentinel used
// throughout the error envelope contract when none is present.
func RequestIDFromRequest(r *http.Request) string {
	if id, ok := telemetry.RequestIDFromContext(r.Context()); ok && id != "" {
		return id
	}
	return "req-unknown"
}
