// Package cache implements the dataset cache manager: on-demand fetch and
// verification of a dataset's derived artifacts, size-aware LRU eviction,
// background integrity re-verification, and the federated catalog's
// conditional refresh protocol (ETag, backoff, circuit breaker).
package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bijux/atlas/internal/artifact"
	"github.com/bijux/atlas/pkg/model"
)

var (
	ErrPolicy        = errors.New("cache: policy failed")
	ErrPolicyInvalid = errors.New("cache: policy invalid")
)

// Rule bounds how large an artifact of a given kind may be before the cache
// manager refuses to admit it into the in-memory/on-disk cache.
type Rule struct {
	Kind     artifact.Kind
	Enabled  bool
	MaxBytes int64
	Notes    string
}

// Policy is the admission policy gating what the cache manager is willing
// to hold, independent of the per-request LRU accounting.
type Policy struct {
	Version  string
	Rules    []Rule
}

// DefaultPolicy returns conservative per-kind admission limits: the
// gene_summary.sqlite database is the bulk of a dataset's footprint and
// gets the largest budget, while small JSON artifacts are effectively
// unbounded.
func DefaultPolicy() Policy {
	return normalizePolicy(Policy{
		Version: "v1",
		Rules: []Rule{
			{Kind: artifact.KindAnomalyReport, Enabled: true, MaxBytes: 16 * 1024 * 1024, Notes: "anomaly reports are small"},
			{Kind: artifact.KindGeneSummary, Enabled: true, MaxBytes: 8 * 1024 * 1024 * 1024, Notes: "bulk of a dataset's footprint"},
			{Kind: artifact.KindManifest, Enabled: true, MaxBytes: 1024 * 1024, Notes: "fixed-shape, always small"},
			{Kind: artifact.KindNormalizedDebug, Enabled: true, MaxBytes: 512 * 1024 * 1024, Notes: "debug-only, never in prod mode"},
			{Kind: artifact.KindQCReport, Enabled: true, MaxBytes: 16 * 1024 * 1024, Notes: "qc reports are small"},
			{Kind: artifact.KindReleaseGeneIndex, Enabled: true, MaxBytes: 256 * 1024 * 1024, Notes: "one row per gene"},
			{Kind: artifact.KindShardCatalog, Enabled: true, MaxBytes: 16 * 1024 * 1024, Notes: "optional sharding metadata"},
		},
	})
}

// RuleFor returns the rule for a kind, or a disabled placeholder if none is
// configured.
func (p Policy) RuleFor(kind artifact.Kind) Rule {
	pn := normalizePolicy(p)
	var matches []Rule
	for _, r := range pn.Rules {
		if r.Kind == kind {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return Rule{Kind: kind, Enabled: false, Notes: "no rule"}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].MaxBytes != matches[j].MaxBytes {
			return matches[i].MaxBytes > matches[j].MaxBytes
		}
		return matches[i].Notes < matches[j].Notes
	})
	return matches[0]
}

// Admit reports whether an artifact of size objBytes may be cached.
func (p Policy) Admit(kind artifact.Kind, objBytes int64) bool {
	r := p.RuleFor(kind)
	if !r.Enabled {
		return false
	}
	if r.MaxBytes > 0 && objBytes > r.MaxBytes {
		return false
	}
	return true
}

// Key builds a stable cache key scoped to one dataset/kind pair.
func Key(dataset model.DatasetID, kind artifact.Kind) (string, error) {
	k := strings.TrimSpace(string(kind))
	if k == "" {
		return "", fmt.Errorf("%w: kind required", ErrPolicyInvalid)
	}
	return fmt.Sprintf("atlas:%s:%s", dataset.CanonicalString(), k), nil
}

func normalizePolicy(p Policy) Policy {
	pp := p
	pp.Version = strings.TrimSpace(pp.Version)
	if pp.Version == "" {
		pp.Version = "v1"
	}
	nr := make([]Rule, 0, len(pp.Rules))
	for _, r := range pp.Rules {
		rr := r
		rr.Kind = artifact.Kind(strings.TrimSpace(string(rr.Kind)))
		rr.Notes = strings.TrimSpace(rr.Notes)
		if rr.MaxBytes < 0 {
			rr.MaxBytes = 0
		}
		nr = append(nr, rr)
	}
	pp.Rules = nr
	return pp
}
