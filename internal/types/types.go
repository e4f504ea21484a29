// Package types provides domain models shared across InboxKeeper components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library so the rule model can be embedded without pulling in the
// storage or transport stack. ID utilities in ids.go import uuid but are
// isolated for the same reason.
package types

import "time"

// RunID identifies one organize pass over a mailbox (UUIDv7).
type RunID string

// RuleID identifies a rule within a rule set. Rule files may carry any
// string; rules without one are named "rule-N" by declaration position.
type RuleID string

// Record is the normalized attribute set of one message.
// Values are scalars (string, int, int64, float64, bool, nil) or lists
// ([]string, []any). A Record is never mutated during evaluation.
type Record map[string]any

// Lookup returns the raw field value and whether the field is present.
// A present field holding nil is reported as found.
func (r Record) Lookup(field string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r[field]
	return v, ok
}

// Subject returns the subject field for log messages, or "<No Subject>".
func (r Record) Subject() string {
	if s, ok := r["subject"].(string); ok && s != "" {
		return s
	}
	return "<No Subject>"
}

// Resource limits enforced when loading rule sets and records.
const (
	// DefaultPriority is assigned to rules without an explicit priority.
	// Lower numbers win, so 100 places unprioritized rules late.
	DefaultPriority = 100

	// MaxRules bounds a single rule set; rule files are hand maintained and a
	// larger set almost always indicates a generated or corrupted file.
	MaxRules = 10000

	// MaxConditionsPerRule bounds per-rule evaluation cost.
	MaxConditionsPerRule = 64

	// MaxInOperatorValues limits in/not_in list size.
	MaxInOperatorValues = 256

	// MaxRegexLength bounds matches_regex pattern size.
	MaxRegexLength = 1024

	// MaxPathDepth bounds dotted field paths ("headers.x-mailer").
	MaxPathDepth = 16
)

// ProcessedMessage is the persisted result of organizing one message.
type ProcessedMessage struct {
	RunID       RunID
	MessageID   string
	FileName    string
	Subject     string
	Sender      string
	Folder      string // mailbox label the message was read from
	ProcessedAt time.Time
	Reports     []ActionReport
	Links       []string
}
