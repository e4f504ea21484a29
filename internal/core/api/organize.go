package api

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/inboxkeeper/internal/core/auth"
	"github.com/solatis/inboxkeeper/internal/types"
)

// Organize evaluates and dispatches records.
//
// Request shapes:
//
//	{"records": [{...}, ...]}              batch, at most MaxBatchSize
//	{"record": {...}}                      single record
//	{"record": {...}, "actions": [...]}    dispatch the given actions
//
// Records are processed in order, one dispatch pass each; a failed action
// is reported in its result and does not fail the request. The request
// deadline is checked between records.
func (s *OrganizerService) Organize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	fields := req.GetFields()

	var records []types.Record
	if list, ok := fields["records"]; ok {
		values := list.GetListValue().GetValues()
		if len(values) == 0 || len(values) > s.cfg.MaxBatchSize {
			return nil, invalidArgument("batch must hold 1 to %d records, got %d", s.cfg.MaxBatchSize, len(values))
		}
		for i, v := range values {
			record, err := recordFromValue(v)
			if err != nil {
				return nil, invalidArgument("records[%d]: %v", i, err)
			}
			records = append(records, record)
		}
	} else if value, ok := fields["record"]; ok {
		record, err := recordFromValue(value)
		if err != nil {
			return nil, invalidArgument("%v", err)
		}
		records = append(records, record)
	} else {
		return nil, invalidArgument("record or records required")
	}

	// A present "actions" key replaces rule evaluation, even when empty.
	var supplied []types.MatchedAction
	list, useSupplied := fields["actions"]
	if useSupplied {
		if len(records) != 1 {
			return nil, invalidArgument("actions require a single record")
		}
		if list.GetListValue() == nil {
			return nil, invalidArgument("actions must be a list")
		}
		for i, v := range list.GetListValue().GetValues() {
			a, err := actionFromValue(v)
			if err != nil {
				return nil, invalidArgument("actions[%d]: %v", i, err)
			}
			supplied = append(supplied, types.MatchedAction{RuleID: "request", Action: a})
		}
	}

	results := make([]any, 0, len(records))
	appliedCount := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, contextStatus(err)
		}

		matched := supplied
		if !useSupplied {
			matched = s.organizer.Engine().Evaluate(record)
		}
		outcome := s.organizer.Dispatch(ctx, record, matched)
		if outcome.Err != nil {
			return nil, contextStatus(outcome.Err)
		}

		reports := make([]any, len(outcome.Reports))
		for i, r := range outcome.Reports {
			reports[i] = reportDoc(r)
		}
		applied := len(outcome.Applied())
		appliedCount += applied

		result := map[string]any{
			"reports": reports,
			"applied": applied,
			"stopped": outcome.Stopped,
		}
		if id, ok := record["message_id"].(string); ok {
			result["message_id"] = id
		}
		results = append(results, result)
	}

	s.logger.Info("organize request",
		"client", auth.ClientFromContext(ctx),
		"records", len(records),
		"applied", appliedCount,
	)

	return newStruct(map[string]any{
		"results":       results,
		"applied_count": appliedCount,
	})
}
