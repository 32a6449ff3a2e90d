// Package query parses and validates the HTTP query parameters accepted by
// the gene/transcript/sequence endpoints, and classifies each request by
// estimated cost so the policy engine can admit or reject it.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	apierrors "github.com/bijux/atlas/pkg/errors"
	"github.com/bijux/atlas/pkg/model"
)

// AllowedParams is the exact, frozen set of accepted query keys. Any other
// key present in the request is rejected with InvalidQueryParameter.
var AllowedParams = map[string]struct{}{
	"release": {}, "species": {}, "assembly": {},
	"limit": {}, "cursor": {},
	"gene_id": {}, "name": {}, "name_like": {}, "biotype": {}, "contig": {},
	"range": {}, "region": {},
	"min_transcripts": {}, "max_transcripts": {},
	"include": {}, "pretty": {}, "explain": {}, "fields": {}, "sort": {},
}

const (
	DefaultLimit    = 50
	MaxLimit        = 500
	MaxCursorBytes  = 4096
	MaxFilterCount  = 6
	MaxRangeSpan    = 5_000_000
)

var AllowedInclude = map[string]struct{}{
	"coords": {}, "biotype": {}, "counts": {}, "length": {},
}

// Params is the normalized, validated form of a gene/transcript query.
type Params struct {
	Dataset model.DatasetID

	Limit  int
	Cursor string

	GeneID         string
	Name           string
	NameLike       string
	Biotype        string
	Contig         string
	Range          *model.Region
	RangeIsRegion  bool // true if Range came from the "region" fallback alias
	MinTranscripts *int
	MaxTranscripts *int

	Include []string
	Pretty  bool
	Explain bool
	Fields  []string

	SortRegionAsc bool
}

// FieldErr is a single field-level validation failure.
type FieldErr struct {
	Parameter string
	Reason    string
	Value     string
}

// Parse validates raw query values against the allowlist and produces a
// normalized Params. dataset is the already-resolved dataset identity (from
// the path, not the query string).
func Parse(dataset model.DatasetID, raw url.Values) (Params, []FieldErr) {
	var errs []FieldErr
	addErr := func(param, reason, value string) {
		errs = append(errs, FieldErr{Parameter: param, Reason: reason, Value: value})
	}

	for k := range raw {
		if _, ok := AllowedParams[k]; !ok {
			addErr(k, "unknown query parameter", "")
		}
	}

	p := Params{Dataset: dataset, Limit: DefaultLimit}

	if v := first(raw, "limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxLimit {
			addErr("limit", fmt.Sprintf("must be an integer between 1 and %d", MaxLimit), v)
		} else {
			p.Limit = n
		}
	}

	if v := first(raw, "cursor"); v != "" {
		if len(v) > MaxCursorBytes {
			addErr("cursor", "exceeds max cursor size", "")
		} else {
			p.Cursor = v
		}
	}

	if v := first(raw, "gene_id"); v != "" {
		if _, err := model.ParseGeneID(v); err != nil {
			addErr("gene_id", "invalid gene id", v)
		} else {
			p.GeneID = v
		}
	}
	p.Name = first(raw, "name")
	if v := first(raw, "name_like"); v != "" {
		if err := validateNameLike(v); err != nil {
			addErr("name_like", err.Error(), v)
		} else {
			p.NameLike = v
		}
	}
	p.Biotype = first(raw, "biotype")
	p.Contig = first(raw, "contig")

	rangeRaw := first(raw, "range")
	regionRaw := first(raw, "region")
	switch {
	case rangeRaw != "":
		r, err := model.ParseRegion(rangeRaw)
		if err != nil {
			addErr("range", "invalid range", rangeRaw)
		} else {
			p.Range = &r
		}
	case regionRaw != "":
		r, err := model.ParseRegion(regionRaw)
		if err != nil {
			addErr("region", "invalid region", regionRaw)
		} else {
			p.Range = &r
			p.RangeIsRegion = true
		}
	}
	if p.Range != nil && p.Range.Span() > MaxRangeSpan {
		addErr("range", fmt.Sprintf("span exceeds max of %d", MaxRangeSpan), "")
		p.Range = nil
	}

	if v := first(raw, "min_transcripts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			addErr("min_transcripts", "must be a non-negative integer", v)
		} else {
			p.MinTranscripts = &n
		}
	}
	if v := first(raw, "max_transcripts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			addErr("max_transcripts", "must be a non-negative integer", v)
		} else {
			p.MaxTranscripts = &n
		}
	}
	if p.MinTranscripts != nil && p.MaxTranscripts != nil && *p.MinTranscripts > *p.MaxTranscripts {
		addErr("min_transcripts", "must be <= max_transcripts", "")
	}

	if v := first(raw, "include"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := AllowedInclude[part]; !ok {
				addErr("include", "unknown include value", part)
				continue
			}
			p.Include = append(p.Include, part)
		}
	}
	p.Pretty = boolParam(raw, "pretty")
	p.Explain = boolParam(raw, "explain")
	if v := first(raw, "fields"); v != "" {
		addErr("fields", "legacy parameter rejected; use include", v)
	}

	if v := first(raw, "sort"); v != "" {
		switch v {
		case "gene_id:asc":
			// default ordering, nothing to set
		case "region:asc":
			p.SortRegionAsc = true
		default:
			addErr("sort", "must be one of gene_id:asc, region:asc", v)
		}
		if p.SortRegionAsc && p.Range == nil {
			addErr("sort", "region:asc requires a range or region filter", v)
			p.SortRegionAsc = false
		}
	}

	if n := activeFilterCount(p); n > MaxFilterCount {
		addErr("", fmt.Sprintf("at most %d filters may be combined, got %d", MaxFilterCount, n), "")
	}

	return p, errs
}

func activeFilterCount(p Params) int {
	n := 0
	if p.GeneID != "" {
		n++
	}
	if p.Name != "" {
		n++
	}
	if p.NameLike != "" {
		n++
	}
	if p.Biotype != "" {
		n++
	}
	if p.Contig != "" {
		n++
	}
	if p.MinTranscripts != nil {
		n++
	}
	if p.MaxTranscripts != nil {
		n++
	}
	if p.Range != nil {
		n++
	}
	return n
}

// validateNameLike enforces the prefix-only wildcard grammar: at most one
// '*' and only as the final character. '%' and '?' are never accepted.
func validateNameLike(v string) error {
	if strings.ContainsAny(v, "%?") {
		return fmt.Errorf("must not contain '%%' or '?'")
	}
	idx := strings.IndexByte(v, '*')
	if idx == -1 {
		return nil
	}
	if idx == 0 {
		return fmt.Errorf("must not start with '*'")
	}
	if idx != len(v)-1 {
		return fmt.Errorf("'*' only allowed as a trailing wildcard")
	}
	return nil
}

func first(v url.Values, key string) string {
	vals := v[key]
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func boolParam(v url.Values, key string) bool {
	s := strings.ToLower(first(v, key))
	return s == "1" || s == "true" || s == "yes"
}

// ToEnvelopeFieldErrors renders parse errors as the sorted field_errors
// shape used in the error envelope's details, and the overall error code to
// raise: InvalidQueryParameter for malformed values, RangeTooLarge if a
// range-span violation is present, QueryRejectedByPolicy if the filter
// count was exceeded, InvalidCursor if the cursor was oversized (the same
// code handlers_genes.go raises for a malformed cursor).
func ToEnvelopeFieldErrors(errs []FieldErr) (apierrors.Code, []apierrors.FieldError) {
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Parameter != errs[j].Parameter {
			return errs[i].Parameter < errs[j].Parameter
		}
		return errs[i].Reason < errs[j].Reason
	})
	code := apierrors.InvalidQueryParameter
	out := make([]apierrors.FieldError, 0, len(errs))
	for _, e := range errs {
		if e.Parameter == "range" && strings.Contains(e.Reason, "exceeds max") {
			code = apierrors.RangeTooLarge
		}
		if e.Parameter == "" && strings.Contains(e.Reason, "filters may be combined") {
			code = apierrors.QueryRejectedByPolicy
		}
		if e.Parameter == "cursor" && strings.Contains(e.Reason, "exceeds max cursor size") {
			code = apierrors.InvalidCursor
		}
		out = append(out, apierrors.FieldError{Parameter: e.Parameter, Reason: e.Reason, Value: e.Value})
	}
	return code, out
}
