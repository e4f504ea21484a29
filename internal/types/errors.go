package types

import "errors"

// Sentinel errors for InboxKeeper operations.
var (
	// ErrRuleSetNotFound indicates the rule file does not exist.
	ErrRuleSetNotFound = errors.New("rule set not found")

	// ErrMalformedRuleSet indicates the rule document could not be decoded.
	ErrMalformedRuleSet = errors.New("malformed rule set")

	// ErrUnsupportedFormat indicates a rule file extension the loader cannot read.
	ErrUnsupportedFormat = errors.New("unsupported rule set format")

	// ErrTooManyRules indicates a rule set exceeds MaxRules.
	ErrTooManyRules = errors.New("rule set has too many rules")

	// ErrTooManyConditions indicates a rule exceeds MaxConditionsPerRule.
	ErrTooManyConditions = errors.New("rule has too many conditions")

	// ErrTooManyInValues indicates an in/not_in list exceeds MaxInOperatorValues.
	ErrTooManyInValues = errors.New("in operator has too many values")

	// ErrRegexTooLong indicates a matches_regex pattern exceeds MaxRegexLength.
	ErrRegexTooLong = errors.New("regex pattern too long")

	// ErrMissingParameter indicates an action lacks a required parameter.
	ErrMissingParameter = errors.New("required action parameter missing")

	// ErrUnknownAction indicates no handler is registered for an action type.
	ErrUnknownAction = errors.New("unknown action type")

	// ErrTemplateNotFound indicates reply_with_template named a missing template.
	ErrTemplateNotFound = errors.New("reply template not found")

	// ErrMessageTooLarge indicates a message exceeds the configured size limit.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")

	// ErrAlreadyProcessed indicates a message was organized in an earlier run.
	ErrAlreadyProcessed = errors.New("message already processed")
)
