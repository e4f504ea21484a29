// internal/rules/evaluate.go
package rules

import (
	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Rule matching.
 *
 * Evaluates a CompiledRule's conditions against a record and combines the
 * results with the rule's logic.
 *
 * Evaluation flow per condition:
 *   1. Invalid condition (unknown operator, bad regex, ...) -> false
 *   2. Resolve field; absent field -> false for every operator
 *   3. Compare(operator, field value, condition value)
 *
 * Empty condition lists match unconditionally (catch-all rules).
 *
 * Matches short-circuits (AND on first false, OR on first true). Conditions
 * have no side effects, so the result equals the full evaluation that
 * EvaluateConditions performs for traces. Both walk declaration order.
 */

// Matches reports whether rule matches record.
func Matches(rule *CompiledRule, record types.Record) bool {
	if len(rule.Conditions) == 0 {
		return true
	}

	for _, cond := range rule.Conditions {
		matched := evaluateCondition(cond, record)
		if rule.Logic == LogicOr && matched {
			return true
		}
		if rule.Logic == LogicAnd && !matched {
			return false
		}
	}

	// AND: every condition held. OR: none did.
	return rule.Logic == LogicAnd
}

// EvaluateConditions evaluates every condition without short-circuiting and
// returns the per-condition results in declaration order.
func EvaluateConditions(rule *CompiledRule, record types.Record) []bool {
	results := make([]bool, len(rule.Conditions))
	for i, cond := range rule.Conditions {
		results[i] = evaluateCondition(cond, record)
	}
	return results
}

// Combine folds condition results with logic. Empty results are true.
func Combine(logic Logic, results []bool) bool {
	if len(results) == 0 {
		return true
	}
	if logic == LogicOr {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

// evaluateCondition evaluates a single compiled condition against record.
func evaluateCondition(cond CompiledCondition, record types.Record) bool {
	if !cond.Valid {
		return false
	}
	value, found := Resolve(record, cond.Path)
	if !found {
		return false
	}
	return Compare(cond.Operator, value, cond.Value)
}
