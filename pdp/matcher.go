// pdp/matcher.go
package pdp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/veritaskey/arbiter/model"
)

// Matches decides whether a policy applies to an evaluation context. A policy
// applies iff every one of the four predicate groups matches; an empty group
// is a wildcard. Within a group every predicate must match (full conjunction,
// no OR). Pure function: no side effects, no clock, no I/O.
func Matches(policy *model.Policy, ectx model.EvaluationContext) (bool, string) {
	groups := []struct {
		name       string
		predicates []model.Predicate
		attributes map[string]interface{}
	}{
		{"subject", policy.SubjectPredicates, ectx.Subject},
		{"action", policy.ActionPredicates, ectx.Action},
		{"resource", policy.ResourcePredicates, ectx.Resource},
		{"environment", policy.EnvironmentPredicates, ectx.Environment},
	}

	for _, group := range groups {
		for _, predicate := range group.predicates {
			if !matchPredicate(predicate, group.attributes, ectx) {
				return false, fmt.Sprintf("%s.%s did not satisfy %s", group.name, predicate.Attribute, predicate.Operator)
			}
		}
	}
	return true, "all predicates satisfied"
}

func matchPredicate(predicate model.Predicate, attributes map[string]interface{}, ectx model.EvaluationContext) bool {
	actual, present := attributes[predicate.Attribute]

	if predicate.Operator == model.OpExists {
		want := true
		if v, ok := predicate.Value.(bool); ok {
			want = v
		}
		return present == want
	}

	// Every other operator needs the attribute to be present.
	if !present {
		return false
	}

	expected, resolved := resolveExpected(predicate.Value, ectx)
	if !resolved {
		return false
	}

	switch predicate.Operator {
	case model.OpEquals:
		return valuesEqual(actual, expected)
	case model.OpNotEquals:
		return !valuesEqual(actual, expected)
	case model.OpIn:
		return valueInList(actual, expected)
	case model.OpNotIn:
		return !valueInList(actual, expected)
	case model.OpGreaterThan:
		cmp, ok := compareValues(actual, expected)
		return ok && cmp > 0
	case model.OpLessThan:
		cmp, ok := compareValues(actual, expected)
		return ok && cmp < 0
	case model.OpMatchesPattern:
		pattern, ok := expected.(string)
		if !ok {
			return false
		}
		// doublestar walks pattern and input in lockstep; there is no
		// backtracking regex engine to feed untrusted input into.
		matched, err := doublestar.Match(pattern, asString(actual))
		return err == nil && matched
	default:
		// Unknown operators are rejected at policy-creation time; a policy
		// that slips through anyway must never grant access.
		return false
	}
}

// resolveExpected dereferences cross-attribute references of the form
// "subject.x", "action.x", "resource.x" or "environment.x" against the
// context. An unresolvable reference fails the predicate.
func resolveExpected(value interface{}, ectx model.EvaluationContext) (interface{}, bool) {
	ref, ok := value.(string)
	if !ok || !isContextReference(ref) {
		return value, true
	}

	group, attribute, _ := strings.Cut(ref, ".")

	var attributes map[string]interface{}
	switch group {
	case "subject":
		attributes = ectx.Subject
	case "action":
		attributes = ectx.Action
	case "resource":
		attributes = ectx.Resource
	case "environment":
		attributes = ectx.Environment
	}

	resolved, present := attributes[attribute]
	return resolved, present
}

// isContextReference reports whether a string predicate value names another
// context attribute rather than a literal.
func isContextReference(value string) bool {
	group, _, found := strings.Cut(value, ".")
	if !found {
		return false
	}
	switch group {
	case "subject", "action", "resource", "environment":
		return true
	}
	return false
}

// valuesEqual compares numerically when both operands parse as numbers,
// as strings otherwise.
func valuesEqual(a, b interface{}) bool {
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			return fa == fb
		}
	}
	return asString(a) == asString(b)
}

func valueInList(actual, expected interface{}) bool {
	switch list := expected.(type) {
	case []interface{}:
		for _, item := range list {
			if valuesEqual(actual, item) {
				return true
			}
		}
	case []string:
		for _, item := range list {
			if valuesEqual(actual, item) {
				return true
			}
		}
	}
	return false
}

// compareValues returns -1/0/1 and whether the operands were comparable.
func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return strings.Compare(asString(a), asString(b)), true
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
