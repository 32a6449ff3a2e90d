package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"unicode"

	"github.com/bijux/atlas/internal/policy"
	"github.com/bijux/atlas/pkg/telemetry"
)

const requestIDHeader = "X-Request-Id"

func validRequestID(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 128 {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func newRequestID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req-fallback"
	}
	return "req-" + hex.EncodeToString(b[:])
}

// RequestID propagates an inbound X-Request-Id (when well-formed) or mints a
// fresh one, sets it on both the request context (under the two distinct
// key types the policy engine and telemetry package each use) and the
// response header, and echoes it back even on every non-2xx path.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !validRequestID(id) {
			id = newRequestID()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := telemetry.ContextWithRequestID(r.Context(), id)
		ctx = policy.ContextWithRequestID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
