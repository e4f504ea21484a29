// internal/types/rules.go
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

/*
 * Domain types for rule evaluation and dispatch.
 *
 * Provides RuleSet, Rule, Condition, and Action structures used by
 * internal/rules for compilation and evaluation and by internal/organizer for
 * dispatch. These types are file-format agnostic: the loader decodes JSON
 * directly and converts YAML documents to JSON before decoding.
 *
 * Key types:
 *   - RuleSet: the {"rules": [...]} document
 *   - Rule: prioritized condition list plus one action
 *   - Condition: single field/operation/value predicate
 *   - Action: typed instruction, type-specific parameters kept in Params
 *
 * Accepted legacy shapes (early rule files):
 *   - "logic" instead of "condition_logic"
 *   - single condition inlined on the rule (field/operation/value)
 *   - bare-string action ("action": "delete")
 */

// ActionKind names an action type. The set is open: unknown kinds decode
// fine and are reported by the dispatcher.
type ActionKind string

const (
	ActionMoveToFolder      ActionKind = "move_to_folder"
	ActionDelete            ActionKind = "delete"
	ActionAddCategory       ActionKind = "add_category"
	ActionAddFlag           ActionKind = "add_flag"
	ActionRemoveFlag        ActionKind = "remove_flag"
	ActionForwardTo         ActionKind = "forward_to"
	ActionReplyWithTemplate ActionKind = "reply_with_template"
	ActionMarkAsRead        ActionKind = "mark_as_read"
	ActionMarkAsUnread      ActionKind = "mark_as_unread"
	ActionSetImportance     ActionKind = "set_importance"
	ActionStopProcessing    ActionKind = "stop_processing"
	ActionNoOp              ActionKind = "no_op"
)

// ActionKinds lists the built-in kinds in declaration order.
var ActionKinds = []ActionKind{
	ActionMoveToFolder,
	ActionDelete,
	ActionAddCategory,
	ActionAddFlag,
	ActionRemoveFlag,
	ActionForwardTo,
	ActionReplyWithTemplate,
	ActionMarkAsRead,
	ActionMarkAsUnread,
	ActionSetImportance,
	ActionStopProcessing,
	ActionNoOp,
}

// RequiredParams returns the parameter names a built-in kind requires.
// Custom kinds return nil; their handlers validate on their own.
func (k ActionKind) RequiredParams() []string {
	switch k {
	case ActionMoveToFolder:
		return []string{"target"}
	case ActionAddCategory:
		return []string{"category_name"}
	case ActionAddFlag, ActionRemoveFlag:
		return []string{"flag_type"}
	case ActionForwardTo:
		return []string{"target_email"}
	case ActionReplyWithTemplate:
		return []string{"template_id"}
	case ActionSetImportance:
		return []string{"level"}
	default:
		return nil
	}
}

// IsBuiltin reports whether k is one of ActionKinds.
func (k ActionKind) IsBuiltin() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Logic values for Rule.ConditionLogic.
const (
	LogicAND = "AND"
	LogicOR  = "OR"
)

// Condition represents one predicate of a rule.
type Condition struct {
	Field     string `json:"field"`
	Operation string `json:"operation"`
	Value     any    `json:"value,omitempty"` // absent for is_empty/is_not_empty
}

// Action is a typed instruction. Every key of the action object other than
// "type" lands in Params.
type Action struct {
	Type   ActionKind
	Params map[string]any
}

// Param returns a parameter rendered as a trimmed string.
// ok is false when the parameter is absent, nil, or blank.
func (a Action) Param(name string) (string, bool) {
	v, present := a.Params[name]
	if !present || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	default:
		s = fmt.Sprintf("%v", t)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// MissingParams returns the required parameters a is missing, in order.
func (a Action) MissingParams() []string {
	var missing []string
	for _, name := range a.Type.RequiredParams() {
		if _, ok := a.Param(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// String renders the action as its flattened JSON form for log messages.
func (a Action) String() string {
	data, err := json.Marshal(a)
	if err != nil {
		return string(a.Type)
	}
	return string(data)
}

// MarshalJSON flattens type and parameters into one object.
func (a Action) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Params)+1)
	for k, v := range a.Params {
		out[k] = v
	}
	out["type"] = string(a.Type)
	return json.Marshal(out)
}

// UnmarshalJSON accepts an action object or a bare action type string.
func (a *Action) UnmarshalJSON(data []byte) error {
	var kind string
	if err := json.Unmarshal(data, &kind); err == nil {
		a.Type = ActionKind(kind)
		a.Params = nil
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("action must be an object or string: %w", err)
	}

	a.Type = ""
	if t, ok := raw["type"].(string); ok {
		a.Type = ActionKind(t)
	}
	delete(raw, "type")
	if len(raw) == 0 {
		raw = nil
	}
	a.Params = raw
	return nil
}

// Rule is one named, prioritized group of conditions plus one action.
type Rule struct {
	ID             RuleID
	Name           string
	Description    string
	Priority       *int // nil means DefaultPriority
	ConditionLogic string
	Conditions     []Condition
	Action         *Action // nil means the rule contributes nothing
}

// EffectivePriority returns Priority or DefaultPriority.
func (r Rule) EffectivePriority() int {
	if r.Priority == nil {
		return DefaultPriority
	}
	return *r.Priority
}

// ruleDocument is the on-disk shape including legacy keys.
type ruleDocument struct {
	ID             RuleID      `json:"id,omitempty"`
	Name           string      `json:"name,omitempty"`
	Description    string      `json:"description,omitempty"`
	Priority       *int        `json:"priority,omitempty"`
	ConditionLogic string      `json:"condition_logic,omitempty"`
	Logic          string      `json:"logic,omitempty"`
	Conditions     []Condition `json:"conditions,omitempty"`
	Field          string      `json:"field,omitempty"`
	Operation      string      `json:"operation,omitempty"`
	Value          any         `json:"value,omitempty"`
	Action         *Action     `json:"action,omitempty"`
}

// UnmarshalJSON decodes a rule, folding legacy keys into the current shape.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var doc ruleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	logic := doc.ConditionLogic
	if logic == "" {
		logic = doc.Logic
	}

	conditions := doc.Conditions
	if len(conditions) == 0 && doc.Field != "" {
		conditions = []Condition{{Field: doc.Field, Operation: doc.Operation, Value: doc.Value}}
	}

	if doc.Action != nil && doc.Action.Type == "" && doc.Action.Params == nil {
		doc.Action = nil
	}

	*r = Rule{
		ID:             doc.ID,
		Name:           doc.Name,
		Description:    doc.Description,
		Priority:       doc.Priority,
		ConditionLogic: logic,
		Conditions:     conditions,
		Action:         doc.Action,
	}
	return nil
}

// MarshalJSON writes the current (non-legacy) shape.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleDocument{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Priority:       r.Priority,
		ConditionLogic: r.ConditionLogic,
		Conditions:     r.Conditions,
		Action:         r.Action,
	})
}

// RuleSet is the full ordered collection of rules.
type RuleSet struct {
	Rules []Rule `json:"rules"`
}

// MatchedAction is one action selected by the engine for a record.
type MatchedAction struct {
	RuleID   RuleID
	Priority int
	Action   Action
}

// ActionReport records the dispatch outcome of one action.
type ActionReport struct {
	RuleID  RuleID
	Action  Action
	Applied bool
	Err     error // nil when Applied
}
