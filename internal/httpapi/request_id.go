package httpapi

import (
	"net/http"

	"github.com/bijux/atlas/internal/httpapi/middleware"
)

// requestID is the handler-local shorthand for the request-id middleware
// stamped onto every request's context.
func requestID(r *http.Request) string {
	return middleware.RequestIDFromRequest(r)
}
