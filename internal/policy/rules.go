package policy

import "fmt"

// RuleKind is one of the fixed evaluator kinds the policy engine supports.
// There is no general expression language: the rule set is closed.
type RuleKind string

const (
	RuleBoolEquals   RuleKind = "bool_equals"
	RuleNumberMin    RuleKind = "number_min"
	RuleArrayNonEmpty RuleKind = "array_non_empty"
)

// Rule checks one path in a resolved config/metrics tree against an
// expected value.
type Rule struct {
	Path     string
	Kind     RuleKind
	Expected any
}

// Evaluate applies the rule to actual and reports a Violation if it fails.
// actual is the value already resolved for Path by the caller; this
// package does not itself walk config trees.
func (r Rule) Evaluate(actual any) (Violation, bool) {
	switch r.Kind {
	case RuleBoolEquals:
		exp, _ := r.Expected.(bool)
		act, ok := actual.(bool)
		if !ok || act != exp {
			return r.violation(actual), true
		}
	case RuleNumberMin:
		min, ok1 := asFloat(r.Expected)
		act, ok2 := asFloat(actual)
		if !ok1 || !ok2 || act < min {
			return r.violation(actual), true
		}
	case RuleArrayNonEmpty:
		arr, ok := actual.([]any)
		if !ok || len(arr) == 0 {
			return r.violation(actual), true
		}
	}
	return Violation{}, false
}

func (r Rule) violation(actual any) Violation {
	return Violation{
		Rule:     string(r.Kind),
		Path:     r.Path,
		Expected: fmt.Sprintf("%v", r.Expected),
		Actual:   fmt.Sprintf("%v", actual),
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// StaticRuleSet returns the fixed rule list gating telemetry and
// publish-gate requirements. allow_override must remain false in every
// mode; it has no corresponding rule because it is never a configurable
// input in the first place — the field does not exist in AtlasConfig.
func StaticRuleSet() []Rule {
	return []Rule{
		{Path: "telemetry.metrics_enabled", Kind: RuleBoolEquals, Expected: true},
		{Path: "telemetry.request_id_required", Kind: RuleBoolEquals, Expected: true},
		{Path: "publish_gates.required_indexes", Kind: RuleArrayNonEmpty},
	}
}

// EvaluateAll runs every rule against values resolved by the caller
// (path -> actual), returning every violation found rather than
// short-circuiting on the first.
func EvaluateAll(rules []Rule, resolved map[string]any) []Violation {
	var out []Violation
	for _, r := range rules {
		actual, ok := resolved[r.Path]
		if !ok {
			out = append(out, Violation{Rule: string(r.Kind), Path: r.Path, Expected: fmt.Sprintf("%v", r.Expected), Actual: "<missing>"})
			continue
		}
		if v, bad := r.Evaluate(actual); bad {
			out = append(out, v)
		}
	}
	return out
}
