// internal/rules/engine.go
package rules

import (
	"log/slog"

	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Rule engine: priority ordering, match collection, early stop.
 *
 * Evaluate walks rules in priority order (lower number first, declaration
 * order on ties) and collects the action of every matching rule. A matched
 * stop_processing action ends the walk: no later rule is evaluated for that
 * record.
 *
 * Conflict policy: all matching rules contribute, in priority order, until a
 * stop. Matched actions are returned as declared, including malformed ones;
 * parameter validation belongs to the dispatcher.
 *
 * The engine holds only compiled, immutable data. Evaluate has no side
 * effects and is safe for concurrent use.
 */

// Engine evaluates records against a compiled rule set.
type Engine struct {
	rules       []*CompiledRule
	diagnostics []Diagnostic
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine compiles rs. Malformed rules produce diagnostics, logged at warn
// level; only resource-limit violations return an error.
func NewEngine(rs types.RuleSet, opts ...Option) (*Engine, error) {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	compiled, diags, err := CompileRuleSet(rs)
	if err != nil {
		return nil, err
	}
	e.rules = compiled
	e.diagnostics = diags

	for _, d := range diags {
		e.logger.Warn("rule diagnostic",
			"rule_id", d.RuleID,
			"condition", d.Condition,
			"code", d.Code,
			"message", d.Message,
		)
	}
	return e, nil
}

// Evaluate returns the actions of matching rules in priority order,
// stopping after the first matched stop_processing action.
func (e *Engine) Evaluate(record types.Record) []types.MatchedAction {
	var matched []types.MatchedAction
	for _, rule := range e.rules {
		if !Matches(rule, record) {
			continue
		}
		if rule.Action == nil {
			continue
		}
		matched = append(matched, types.MatchedAction{
			RuleID:   rule.RuleID,
			Priority: rule.Priority,
			Action:   *rule.Action,
		})
		if rule.Action.Type == types.ActionStopProcessing {
			break
		}
	}
	return matched
}

// Trace is the evaluation record of one rule for one record.
type Trace struct {
	RuleID     types.RuleID
	Name       string
	Priority   int
	Logic      Logic
	Conditions []bool
	Matched    bool
	Stopped    bool // this rule's stop_processing ended evaluation
}

// Explain evaluates like Evaluate but records every visited rule with its
// per-condition results. Rules after a stop are not visited.
func (e *Engine) Explain(record types.Record) []Trace {
	traces := make([]Trace, 0, len(e.rules))
	for _, rule := range e.rules {
		results := EvaluateConditions(rule, record)
		t := Trace{
			RuleID:     rule.RuleID,
			Name:       rule.Name,
			Priority:   rule.Priority,
			Logic:      rule.Logic,
			Conditions: results,
			Matched:    Combine(rule.Logic, results),
		}
		if t.Matched && rule.Action != nil && rule.Action.Type == types.ActionStopProcessing {
			t.Stopped = true
		}
		traces = append(traces, t)
		if t.Stopped {
			break
		}
	}
	return traces
}

// Diagnostics returns the compile-time warnings of the rule set.
func (e *Engine) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(e.diagnostics))
	copy(out, e.diagnostics)
	return out
}

// Rules returns the compiled rules in evaluation order.
func (e *Engine) Rules() []*CompiledRule {
	out := make([]*CompiledRule, len(e.rules))
	copy(out, e.rules)
	return out
}
