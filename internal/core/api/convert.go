package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/inboxkeeper/internal/rules"
	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Struct document mapping.
 *
 * Records arrive as Struct values and are used as-is after AsMap: numbers
 * become float64, lists []any and nested objects map[string]any, all of
 * which the rule engine already handles.
 *
 * Actions cross the boundary through their JSON form so the decoding rules
 * (object or bare string, parameters flattened next to "type") stay in one
 * place, types.Action's JSON methods.
 *
 * Response maps may only hold values structpb.NewValue accepts; named string
 * types such as types.RuleID are converted explicitly.
 */

func recordFromValue(v *structpb.Value) (types.Record, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("record must be an object")
	}
	return types.Record(s.AsMap()), nil
}

func actionFromValue(v *structpb.Value) (types.Action, error) {
	data, err := json.Marshal(v.AsInterface())
	if err != nil {
		return types.Action{}, err
	}
	var a types.Action
	if err := json.Unmarshal(data, &a); err != nil {
		return types.Action{}, err
	}
	if a.Type == "" {
		return types.Action{}, fmt.Errorf("action type required")
	}
	return a, nil
}

func actionDoc(a types.Action) map[string]any {
	data, err := json.Marshal(a)
	if err != nil {
		return map[string]any{"type": string(a.Type)}
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]any{"type": string(a.Type)}
	}
	return doc
}

func matchedDoc(m types.MatchedAction) map[string]any {
	return map[string]any{
		"rule_id":  string(m.RuleID),
		"priority": m.Priority,
		"action":   actionDoc(m.Action),
	}
}

func reportDoc(r types.ActionReport) map[string]any {
	doc := map[string]any{
		"rule_id": string(r.RuleID),
		"action":  actionDoc(r.Action),
		"applied": r.Applied,
	}
	if r.Err != nil {
		doc["error"] = r.Err.Error()
	}
	return doc
}

func traceDoc(t rules.Trace) map[string]any {
	conditions := make([]any, len(t.Conditions))
	for i, c := range t.Conditions {
		conditions[i] = c
	}
	return map[string]any{
		"rule_id":    string(t.RuleID),
		"name":       t.Name,
		"priority":   t.Priority,
		"logic":      t.Logic.String(),
		"conditions": conditions,
		"matched":    t.Matched,
		"stopped":    t.Stopped,
	}
}

func ruleDoc(r *rules.CompiledRule) map[string]any {
	doc := map[string]any{
		"rule_id":    string(r.RuleID),
		"name":       r.Name,
		"priority":   r.Priority,
		"logic":      r.Logic.String(),
		"conditions": len(r.Conditions),
	}
	if r.Action != nil {
		doc["action"] = actionDoc(*r.Action)
	}
	return doc
}

func diagnosticDoc(d rules.Diagnostic) map[string]any {
	return map[string]any{
		"rule_id":   string(d.RuleID),
		"condition": d.Condition,
		"code":      string(d.Code),
		"message":   d.Message,
	}
}
