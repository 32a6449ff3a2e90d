package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/bijux/atlas/internal/policy"
	apierrors "github.com/bijux/atlas/pkg/errors"
)

// ipKey hashes the client IP so raw addresses never sit as map keys in
// memory dumps or logs; this is not a confidentiality guarantee, only a
// reduction of accidental exposure.
func ipKey(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:16])
}

func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if parts := strings.Split(xff, ","); len(parts) > 0 {
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// RateLimit enforces limiter's per-client token bucket, rejecting with the
// frozen RateLimited envelope and a best-effort Retry-After header when a
// bucket is exhausted.
func RateLimit(limiter *policy.RateLimiter, requestIDOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := ipKey(clientIP(r))
			ok, retry := limiter.Allow(key)
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			ra := int(retry.Seconds())
			if ra < 1 {
				ra = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(ra))
			apierrors.WriteHTTP(w, apierrors.New(apierrors.RateLimited, "too many requests", requestIDOf(r), nil))
		})
	}
}
