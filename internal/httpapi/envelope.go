package httpapi

import (
	"net/http"

	"github.com/bijux/atlas/pkg/canonicaljson"
	"github.com/bijux/atlas/pkg/model"
)

// CachePolicy selects the Cache-Control directive a response carries,
// matching the three named policies the serving core distinguishes:
// frequently-changing catalog/discovery data, immutable published
// datasets, and ordinary query results.
type CachePolicy int

const (
	CatalogDiscovery CachePolicy = iota
	ImmutableDataset
	QueryResult
)

func (p CachePolicy) headerValue() string {
	switch p {
	case ImmutableDataset:
		return "public, max-age=31536000, immutable"
	case QueryResult:
		return "private, max-age=30"
	default:
		return "public, max-age=5"
	}
}

// Page is the pagination block of the response envelope.
type Page struct {
	Limit      int    `json:"limit"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// Envelope is the success response shape: {dataset?, page?, data, links?, meta?}.
type Envelope struct {
	Dataset *model.DatasetID `json:"dataset,omitempty"`
	Page    *Page            `json:"page,omitempty"`
	Data    any              `json:"data"`
	Links   map[string]string `json:"links,omitempty"`
	Meta    map[string]any    `json:"meta,omitempty"`
}

// ListData is the data block shape for list endpoints: items plus stats.
type ListData struct {
	Items any            `json:"items"`
	Stats map[string]any `json:"stats,omitempty"`
}

// writeEnvelope serializes env with the canonical serializer, sets the
// ETag/Cache-Control headers from policy, honors a matching If-None-Match
// with a bodiless 304, and otherwise writes the full body with status 200.
func writeEnvelope(w http.ResponseWriter, r *http.Request, env Envelope, policy CachePolicy) {
	body, err := canonicaljson.Marshal(env)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	etag := `"` + canonicaljson.SHA256Hex(body) + `"`
	w.Header().Set("Cache-Control", policy.headerValue())
	w.Header().Set("ETag", etag)

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
