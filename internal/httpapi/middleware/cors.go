package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig mirrors the gateway's environment-driven CORS policy, surfaced
// here as an explicit struct (rather than read from the environment inside
// the middleware) so cmd/atlas-server can source it from AtlasConfig.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   string
	AllowedHeaders   string
	AllowCredentials bool
	MaxAgeSeconds    int
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: "GET,OPTIONS",
		AllowedHeaders: "*",
		MaxAgeSeconds:  600,
	}
}

func (c CORSConfig) allowAll() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (c CORSConfig) originAllowed(origin string) (string, bool) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", false
	}
	if c.AllowCredentials {
		for _, o := range c.AllowedOrigins {
			if o == origin {
				return origin, true
			}
		}
		return "", false
	}
	if c.allowAll() {
		return "*", true
	}
	for _, o := range c.AllowedOrigins {
		if o == origin {
			return origin, true
		}
	}
	return "", false
}

func (c CORSConfig) setHeaders(w http.ResponseWriter, allowedOrigin string) {
	if allowedOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		if allowedOrigin != "*" {
			w.Header().Add("Vary", "Origin")
		}
	}
	w.Header().Set("Access-Control-Allow-Methods", c.AllowedMethods)
	w.Header().Set("Access-Control-Allow-Headers", c.AllowedHeaders)
	if c.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAgeSeconds))
}

// CORS applies cfg to every request, answering preflight OPTIONS with 204.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed, ok := cfg.originAllowed(r.Header.Get("Origin")); ok {
				cfg.setHeaders(w, allowed)
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
