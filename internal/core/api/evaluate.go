package api

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Evaluate returns the matched actions for request field "record" without
// dispatching them. With "explain": true the response also carries the
// per-rule trace.
func (s *OrganizerService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	value, ok := req.GetFields()["record"]
	if !ok {
		return nil, invalidArgument("record required")
	}
	record, err := recordFromValue(value)
	if err != nil {
		return nil, invalidArgument("%v", err)
	}

	engine := s.organizer.Engine()
	matched := engine.Evaluate(record)

	actions := make([]any, len(matched))
	for i, m := range matched {
		actions[i] = matchedDoc(m)
	}
	resp := map[string]any{"actions": actions}

	if req.GetFields()["explain"].GetBoolValue() {
		traces := engine.Explain(record)
		docs := make([]any, len(traces))
		for i, t := range traces {
			docs[i] = traceDoc(t)
		}
		resp["trace"] = docs
	}

	return newStruct(resp)
}

// ListRules returns the loaded rules in evaluation order and the
// diagnostics found when compiling them.
func (s *OrganizerService) ListRules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	engine := s.organizer.Engine()

	compiled := engine.Rules()
	ruleDocs := make([]any, len(compiled))
	for i, r := range compiled {
		ruleDocs[i] = ruleDoc(r)
	}

	diags := engine.Diagnostics()
	diagDocs := make([]any, len(diags))
	for i, d := range diags {
		diagDocs[i] = diagnosticDoc(d)
	}

	return newStruct(map[string]any{
		"rules":       ruleDocs,
		"diagnostics": diagDocs,
	})
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}
