// internal/rules/operators.go
package rules

import (
	"regexp"
	"strings"
)

/*
 * Operator comparison logic (condition evaluator).
 *
 * Implements the 15 condition operators over record field values. Compare
 * never returns an error: type mismatches, non-list membership sets, and
 * unknown operators all evaluate to false so a malformed rule cannot abort
 * an evaluation pass.
 *
 * Operators:
 *   - equals: case-sensitive, type-exact (all numeric kinds are one type)
 *   - equals_ignore_case/contains/starts_with/ends_with: case-insensitive text
 *   - not_contains: negated contains, false on type mismatch
 *   - matches_regex: pattern must match at offset 0 (prefix match)
 *   - greater_than/less_than/..._or_equal: numbers, or strings lexically
 *   - is_empty/is_not_empty: truthiness, condition value ignored
 *   - in/not_in: membership in a list, case-insensitive for strings
 *
 * List-valued fields (to, cc, attachment_names): text operators and
 * membership apply per element, matching when any element matches
 * (not_contains/not_in: when no element matches).
 *
 * Why a closed string enum with a switch: the operator set is fixed and
 * exhaustive handling is reviewed in one place.
 */

// OperatorKind names a condition operator.
type OperatorKind string

const (
	OpEquals             OperatorKind = "equals"
	OpEqualsIgnoreCase   OperatorKind = "equals_ignore_case"
	OpContains           OperatorKind = "contains"
	OpNotContains        OperatorKind = "not_contains"
	OpStartsWith         OperatorKind = "starts_with"
	OpEndsWith           OperatorKind = "ends_with"
	OpMatchesRegex       OperatorKind = "matches_regex"
	OpGreaterThan        OperatorKind = "greater_than"
	OpLessThan           OperatorKind = "less_than"
	OpGreaterThanOrEqual OperatorKind = "greater_than_or_equal"
	OpLessThanOrEqual    OperatorKind = "less_than_or_equal"
	OpIsEmpty            OperatorKind = "is_empty"
	OpIsNotEmpty         OperatorKind = "is_not_empty"
	OpIn                 OperatorKind = "in"
	OpNotIn              OperatorKind = "not_in"
)

// operatorAliases maps spellings from early rule files.
var operatorAliases = map[string]OperatorKind{
	"startswith": OpStartsWith,
	"endswith":   OpEndsWith,
}

// ParseOperator normalizes an operation name. ok is false for unknown names.
func ParseOperator(name string) (OperatorKind, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := operatorAliases[n]; ok {
		return alias, true
	}
	switch op := OperatorKind(n); op {
	case OpEquals, OpEqualsIgnoreCase, OpContains, OpNotContains,
		OpStartsWith, OpEndsWith, OpMatchesRegex,
		OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual,
		OpIsEmpty, OpIsNotEmpty, OpIn, OpNotIn:
		return op, true
	default:
		return "", false
	}
}

// IsUnary reports whether op ignores the condition value.
func (op OperatorKind) IsUnary() bool {
	return op == OpIsEmpty || op == OpIsNotEmpty
}

// Compare applies op to a field value and a condition value.
// For matches_regex, target may be a pattern string or a *regexp.Regexp.
func Compare(op OperatorKind, value, target any) bool {
	switch op {
	case OpEquals:
		return compareEqual(value, target)
	case OpEqualsIgnoreCase:
		return anyText(value, target, strings.EqualFold)
	case OpContains:
		return anyText(value, target, containsFold)
	case OpNotContains:
		if _, ok := target.(string); !ok || !isTextual(value) {
			return false
		}
		return !anyText(value, target, containsFold)
	case OpStartsWith:
		return anyText(value, target, hasPrefixFold)
	case OpEndsWith:
		return anyText(value, target, hasSuffixFold)
	case OpMatchesRegex:
		return compareRegex(value, target)
	case OpGreaterThan:
		c, ok := compareOrdered(value, target)
		return ok && c > 0
	case OpLessThan:
		c, ok := compareOrdered(value, target)
		return ok && c < 0
	case OpGreaterThanOrEqual:
		c, ok := compareOrdered(value, target)
		return ok && c >= 0
	case OpLessThanOrEqual:
		c, ok := compareOrdered(value, target)
		return ok && c <= 0
	case OpIsEmpty:
		return isEmpty(value)
	case OpIsNotEmpty:
		return !isEmpty(value)
	case OpIn:
		set, ok := asList(target)
		if !ok {
			return false
		}
		return memberOf(value, set)
	case OpNotIn:
		set, ok := asList(target)
		if !ok {
			return false
		}
		return !memberOf(value, set)
	default:
		return false
	}
}

// compareEqual is type-exact equality. Numbers compare by value across
// numeric kinds; lists compare element-wise.
func compareEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	la, oka := asList(a)
	lb, okb := asList(b)
	if !oka || !okb || len(la) != len(lb) {
		return false
	}
	for i := range la {
		if !compareEqual(la[i], lb[i]) {
			return false
		}
	}
	return true
}

// anyText applies fn to a string target and a string field value, or to each
// element of a string-list field value, matching if any element matches.
func anyText(value, target any, fn func(s, t string) bool) bool {
	t, ok := target.(string)
	if !ok {
		return false
	}
	if s, ok := value.(string); ok {
		return fn(s, t)
	}
	elems, ok := asStrings(value)
	if !ok {
		return false
	}
	for _, s := range elems {
		if fn(s, t) {
			return true
		}
	}
	return false
}

// isTextual reports whether value is a string or a list of strings.
func isTextual(value any) bool {
	if _, ok := value.(string); ok {
		return true
	}
	_, ok := asStrings(value)
	return ok
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func hasSuffixFold(s, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}

// compareRegex matches when the pattern matches starting at offset 0.
// Leftmost-first search returns a match at 0 whenever one exists there.
func compareRegex(value, target any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	var re *regexp.Regexp
	switch t := target.(type) {
	case *regexp.Regexp:
		re = t
	case string:
		compiled, err := regexp.Compile(t)
		if err != nil {
			return false
		}
		re = compiled
	default:
		return false
	}
	if re == nil {
		return false
	}
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}

// compareOrdered performs three-way comparison for numbers or for strings.
// ok is false for any other pairing.
func compareOrdered(a, b any) (int, bool) {
	if na, nb, ok := asNumbers(a, b); ok {
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, oka := a.(string)
	sb, okb := b.(string)
	if oka && okb {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// memberOf tests value against set. Strings compare case-insensitively,
// everything else with compareEqual. A list value is a member when any of
// its elements is.
func memberOf(value any, set []any) bool {
	if s, ok := value.(string); ok {
		for _, elem := range set {
			if es, ok := elem.(string); ok && strings.EqualFold(s, es) {
				return true
			}
		}
		return false
	}
	if elems, ok := asList(value); ok {
		for _, elem := range elems {
			if memberOf(elem, set) {
				return true
			}
		}
		return false
	}
	for _, elem := range set {
		if compareEqual(value, elem) {
			return true
		}
	}
	return false
}
