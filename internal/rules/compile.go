// internal/rules/compile.go
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles types.Rule to CompiledRule with parsed operators, pre-split field
 * paths, pre-compiled regexes, normalized logic, and an effective priority.
 *
 * Compilation workflow:
 *   1. Enforce resource limits (conditions per rule, IN values, regex size)
 *   2. Parse operator names; unknown names compile to an always-false condition
 *   3. Compile matches_regex patterns; invalid patterns compile to always-false
 *   4. Normalize condition_logic; unrecognized values fall back to AND
 *   5. Check the action kind and its required parameters
 *
 * Steps 2-5 never fail compilation. They produce Diagnostics that the engine
 * exposes and logs, so a malformed rule degrades to "no match" or "action not
 * applied" while the rest of the rule set keeps working. Only resource-limit
 * violations reject the rule set.
 *
 * Rule order: CompileRuleSet stable-sorts by effective priority so rules with
 * equal priority keep declaration order.
 */

// Logic is the normalized condition combinator.
type Logic int

const (
	LogicAnd Logic = iota
	LogicOr
)

func (l Logic) String() string {
	if l == LogicOr {
		return types.LogicOR
	}
	return types.LogicAND
}

// DiagnosticCode classifies a compile-time warning.
type DiagnosticCode string

const (
	DiagUnknownOperator  DiagnosticCode = "unknown_operator"
	DiagMissingField     DiagnosticCode = "missing_field"
	DiagInvalidRegex     DiagnosticCode = "invalid_regex"
	DiagNonListValue     DiagnosticCode = "non_list_value"
	DiagUnknownLogic     DiagnosticCode = "unknown_logic"
	DiagNoAction         DiagnosticCode = "no_action"
	DiagUnknownAction    DiagnosticCode = "unknown_action"
	DiagMissingParameter DiagnosticCode = "missing_parameter"
)

// Diagnostic is a non-fatal problem found while compiling a rule.
type Diagnostic struct {
	RuleID    types.RuleID
	Condition int // condition index, -1 for rule-level diagnostics
	Code      DiagnosticCode
	Message   string
}

func (d Diagnostic) String() string {
	if d.Condition >= 0 {
		return fmt.Sprintf("rule %s condition %d: %s: %s", d.RuleID, d.Condition, d.Code, d.Message)
	}
	return fmt.Sprintf("rule %s: %s: %s", d.RuleID, d.Code, d.Message)
}

// CompiledCondition is a pre-processed condition ready for evaluation.
type CompiledCondition struct {
	Source   types.Condition
	Path     FieldPath
	Operator OperatorKind
	Value    any  // *regexp.Regexp for matches_regex
	Valid    bool // false compiles to an always-false condition
}

// CompiledRule is fully pre-processed and ready for evaluation.
type CompiledRule struct {
	RuleID     types.RuleID
	Name       string
	Priority   int
	Order      int // declaration index, tie-breaker for equal priority
	Logic      Logic
	Conditions []CompiledCondition // declaration order
	Action     *types.Action
}

// Compile validates and pre-processes a single rule.
// order is the rule's declaration index; it also names rules without an ID.
func Compile(rule types.Rule, order int) (*CompiledRule, []Diagnostic, error) {
	id := rule.ID
	if id == "" {
		id = types.RuleID(fmt.Sprintf("rule-%d", order+1))
	}

	if len(rule.Conditions) > types.MaxConditionsPerRule {
		return nil, nil, fmt.Errorf("rule %s: %w (%d > %d)", id, types.ErrTooManyConditions, len(rule.Conditions), types.MaxConditionsPerRule)
	}

	compiled := &CompiledRule{
		RuleID:     id,
		Name:       rule.Name,
		Priority:   rule.EffectivePriority(),
		Order:      order,
		Conditions: make([]CompiledCondition, 0, len(rule.Conditions)),
		Action:     rule.Action,
	}

	var diags []Diagnostic
	report := func(cond int, code DiagnosticCode, format string, args ...any) {
		diags = append(diags, Diagnostic{RuleID: id, Condition: cond, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	switch logic := strings.ToUpper(strings.TrimSpace(rule.ConditionLogic)); logic {
	case "", types.LogicAND:
		compiled.Logic = LogicAnd
	case types.LogicOR:
		compiled.Logic = LogicOr
	default:
		compiled.Logic = LogicAnd
		report(-1, DiagUnknownLogic, "condition_logic %q not recognized, using AND", rule.ConditionLogic)
	}

	for i, cond := range rule.Conditions {
		cc, err := compileCondition(cond, func(code DiagnosticCode, format string, args ...any) {
			report(i, code, format, args...)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s condition %d: %w", id, i, err)
		}
		compiled.Conditions = append(compiled.Conditions, cc)
	}

	switch {
	case rule.Action == nil:
		report(-1, DiagNoAction, "rule has no action and contributes nothing when matched")
	case !rule.Action.Type.IsBuiltin():
		report(-1, DiagUnknownAction, "action type %q has no built-in handler", rule.Action.Type)
	default:
		if missing := rule.Action.MissingParams(); len(missing) > 0 {
			report(-1, DiagMissingParameter, "action %s missing %s", rule.Action.Type, strings.Join(missing, ", "))
		}
	}

	return compiled, diags, nil
}

// compileCondition parses and validates one condition.
// Returns an error only for resource-limit violations.
func compileCondition(cond types.Condition, report func(DiagnosticCode, string, ...any)) (CompiledCondition, error) {
	cc := CompiledCondition{Source: cond, Value: cond.Value, Valid: true}

	path, ok := ParseFieldPath(cond.Field)
	if !ok {
		report(DiagMissingField, "condition has no usable field name %q", cond.Field)
		cc.Valid = false
	}
	cc.Path = path

	op, ok := ParseOperator(cond.Operation)
	if !ok {
		report(DiagUnknownOperator, "operation %q not recognized, condition is always false", cond.Operation)
		cc.Valid = false
		return cc, nil
	}
	cc.Operator = op

	switch op {
	case OpIn, OpNotIn:
		list, ok := asList(cond.Value)
		if !ok {
			report(DiagNonListValue, "%s requires a list value, condition is always false", op)
			cc.Valid = false
			return cc, nil
		}
		if len(list) > types.MaxInOperatorValues {
			return cc, fmt.Errorf("%w (%d > %d)", types.ErrTooManyInValues, len(list), types.MaxInOperatorValues)
		}
	case OpMatchesRegex:
		pattern, ok := cond.Value.(string)
		if !ok {
			report(DiagInvalidRegex, "matches_regex requires a string pattern, condition is always false")
			cc.Valid = false
			return cc, nil
		}
		if len(pattern) > types.MaxRegexLength {
			return cc, fmt.Errorf("%w (%d > %d)", types.ErrRegexTooLong, len(pattern), types.MaxRegexLength)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			report(DiagInvalidRegex, "pattern %q does not compile: %v", pattern, err)
			cc.Valid = false
			return cc, nil
		}
		cc.Value = re
	}

	return cc, nil
}

// CompileRuleSet compiles every rule and orders them by priority.
func CompileRuleSet(rs types.RuleSet) ([]*CompiledRule, []Diagnostic, error) {
	if len(rs.Rules) > types.MaxRules {
		return nil, nil, fmt.Errorf("%w (%d > %d)", types.ErrTooManyRules, len(rs.Rules), types.MaxRules)
	}

	compiled := make([]*CompiledRule, 0, len(rs.Rules))
	var diags []Diagnostic
	for i, rule := range rs.Rules {
		cr, d, err := Compile(rule, i)
		if err != nil {
			return nil, nil, err
		}
		compiled = append(compiled, cr)
		diags = append(diags, d...)
	}

	// Stable sort: equal-priority rules keep declaration order
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority < compiled[j].Priority
	})

	return compiled, diags, nil
}
