package organizer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/solatis/inboxkeeper/internal/core/metrics"
	"github.com/solatis/inboxkeeper/internal/rules"
	"github.com/solatis/inboxkeeper/internal/types"
)

func prio(n int) *int { return &n }

func action(kind types.ActionKind, params map[string]any) *types.Action {
	return &types.Action{Type: kind, Params: params}
}

func newTestLogger(logs *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newOrganizer(t *testing.T, logs *bytes.Buffer, rs []types.Rule, opts ...Option) *Organizer {
	t.Helper()
	logger := newTestLogger(logs)
	engine, err := rules.NewEngine(types.RuleSet{Rules: rs}, rules.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return New(engine, append([]Option{WithLogger(logger)}, opts...)...)
}

func appliedTypes(actions []types.Action) []types.ActionKind {
	out := make([]types.ActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Type
	}
	return out
}

func TestOrganize_SingleRule(t *testing.T) {
	var logs bytes.Buffer
	o := newOrganizer(t, &logs, []types.Rule{{
		ID:         "important",
		Priority:   prio(1),
		Conditions: []types.Condition{{Field: "subject", Operation: "contains", Value: "Important"}},
		Action:     action(types.ActionMoveToFolder, map[string]any{"target": "Important"}),
	}})

	out := o.Organize(context.Background(), types.Record{"subject": "Important Email"})
	applied := out.Applied()
	if len(applied) != 1 || applied[0].Type != types.ActionMoveToFolder {
		t.Fatalf("Applied() = %v, want one move_to_folder", applied)
	}
	if target, _ := applied[0].Param("target"); target != "Important" {
		t.Errorf("target = %q, want Important", target)
	}
	if !strings.Contains(logs.String(), "simulating move to folder") || !strings.Contains(logs.String(), "folder=Important") {
		t.Errorf("logs = %s, want simulated move", logs.String())
	}
}

func TestOrganize_StopProcessing(t *testing.T) {
	var logs bytes.Buffer
	moved := false
	o := newOrganizer(t, &logs, []types.Rule{
		{
			ID:         "friends",
			Priority:   prio(0),
			Conditions: []types.Condition{{Field: "from", Operation: "contains", Value: "friend@example.com"}},
			Action:     action(types.ActionStopProcessing, nil),
		},
		{
			ID:         "important",
			Priority:   prio(1),
			Conditions: []types.Condition{{Field: "subject", Operation: "contains", Value: "Important"}},
			Action:     action(types.ActionMoveToFolder, map[string]any{"target": "X"}),
		},
	}, WithHandler(types.ActionMoveToFolder, HandlerFunc(func(context.Context, types.Record, types.Action) error {
		moved = true
		return nil
	})))

	out := o.Organize(context.Background(), types.Record{"from": "friend@example.com", "subject": "Important"})
	if got := appliedTypes(out.Applied()); !reflect.DeepEqual(got, []types.ActionKind{types.ActionStopProcessing}) {
		t.Errorf("Applied() = %v, want [stop_processing]", got)
	}
	if !out.Stopped {
		t.Error("Stopped = false, want true")
	}
	if moved {
		t.Error("move_to_folder handler ran after stop_processing")
	}
}

func TestDispatch(t *testing.T) {
	stopAction := types.MatchedAction{RuleID: "s", Action: types.Action{Type: types.ActionStopProcessing}}
	move := types.MatchedAction{RuleID: "m", Action: types.Action{Type: types.ActionMoveToFolder, Params: map[string]any{"target": "Archive"}}}
	moveMissing := types.MatchedAction{RuleID: "mm", Action: types.Action{Type: types.ActionMoveToFolder}}
	moveBlank := types.MatchedAction{RuleID: "mb", Action: types.Action{Type: types.ActionMoveToFolder, Params: map[string]any{"target": "  "}}}
	unknown := types.MatchedAction{RuleID: "u", Action: types.Action{Type: "shred"}}
	del := types.MatchedAction{RuleID: "d", Action: types.Action{Type: types.ActionDelete}}

	tests := []struct {
		name        string
		matched     []types.MatchedAction
		wantApplied []types.ActionKind
		wantFailed  int
		wantStopped bool
		wantLog     string
	}{
		{"empty list", nil, []types.ActionKind{}, 0, false, ""},
		{"all applied in order", []types.MatchedAction{move, del}, []types.ActionKind{types.ActionMoveToFolder, types.ActionDelete}, 0, false, "simulating deletion"},
		{"missing parameter continues", []types.MatchedAction{moveMissing, del}, []types.ActionKind{types.ActionDelete}, 1, false, "failed to apply action"},
		{"blank parameter is missing", []types.MatchedAction{moveBlank}, []types.ActionKind{}, 1, false, "required action parameter missing"},
		{"unknown type skipped", []types.MatchedAction{unknown, move}, []types.ActionKind{types.ActionMoveToFolder}, 1, false, "unknown action type"},
		{"stop halts dispatch", []types.MatchedAction{move, stopAction, del}, []types.ActionKind{types.ActionMoveToFolder, types.ActionStopProcessing}, 0, true, "stopping further action processing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			o := newOrganizer(t, &logs, nil)
			out := o.Dispatch(context.Background(), types.Record{"subject": "hello"}, tt.matched)

			if got := appliedTypes(out.Applied()); !reflect.DeepEqual(got, tt.wantApplied) {
				t.Errorf("Applied() = %v, want %v", got, tt.wantApplied)
			}
			if got := len(out.Failed()); got != tt.wantFailed {
				t.Errorf("len(Failed()) = %d, want %d", got, tt.wantFailed)
			}
			if out.Stopped != tt.wantStopped {
				t.Errorf("Stopped = %v, want %v", out.Stopped, tt.wantStopped)
			}
			if tt.wantLog != "" && !strings.Contains(logs.String(), tt.wantLog) {
				t.Errorf("logs missing %q:\n%s", tt.wantLog, logs.String())
			}
		})
	}
}

func TestDispatch_ReportsErrors(t *testing.T) {
	var logs bytes.Buffer
	o := newOrganizer(t, &logs, nil)
	out := o.Dispatch(context.Background(), types.Record{}, []types.MatchedAction{
		{RuleID: "u", Action: types.Action{Type: "shred"}},
		{RuleID: "f", Action: types.Action{Type: types.ActionForwardTo}},
	})

	if len(out.Reports) != 2 {
		t.Fatalf("len(Reports) = %d, want 2", len(out.Reports))
	}
	if !errors.Is(out.Reports[0].Err, types.ErrUnknownAction) {
		t.Errorf("Reports[0].Err = %v, want ErrUnknownAction", out.Reports[0].Err)
	}
	if !errors.Is(out.Reports[1].Err, types.ErrMissingParameter) {
		t.Errorf("Reports[1].Err = %v, want ErrMissingParameter", out.Reports[1].Err)
	}
	if !strings.Contains(out.Reports[1].Err.Error(), "target_email") {
		t.Errorf("Reports[1].Err = %v, want parameter name", out.Reports[1].Err)
	}
	if !strings.Contains(logs.String(), "subject=\"<No Subject>\"") {
		t.Errorf("logs = %s, want placeholder subject", logs.String())
	}
}

func TestDispatch_CountsActions(t *testing.T) {
	applied := metrics.ActionsTotal.WithLabelValues(string(types.ActionMarkAsRead), metrics.ResultApplied)
	failed := metrics.ActionsTotal.WithLabelValues(string(types.ActionSetImportance), metrics.ResultFailed)
	unknown := metrics.ActionsTotal.WithLabelValues(metrics.UnknownAction, metrics.ResultFailed)
	before := [3]float64{testutil.ToFloat64(applied), testutil.ToFloat64(failed), testutil.ToFloat64(unknown)}

	var logs bytes.Buffer
	o := newOrganizer(t, &logs, nil)
	o.Dispatch(context.Background(), types.Record{}, []types.MatchedAction{
		{RuleID: "a", Action: types.Action{Type: types.ActionMarkAsRead}},
		{RuleID: "b", Action: types.Action{Type: types.ActionMarkAsRead}},
		{RuleID: "c", Action: types.Action{Type: types.ActionSetImportance}},
		{RuleID: "d", Action: types.Action{Type: "shred"}},
	})

	after := [3]float64{testutil.ToFloat64(applied), testutil.ToFloat64(failed), testutil.ToFloat64(unknown)}
	if want := [3]float64{before[0] + 2, before[1] + 1, before[2] + 1}; after != want {
		t.Errorf("action counters = %v, want %v", after, want)
	}
}

func TestWithHandler_Custom(t *testing.T) {
	var logs bytes.Buffer
	var got []string
	o := newOrganizer(t, &logs, []types.Rule{{
		ID:     "label",
		Action: action("apply_label", map[string]any{"label": "receipts"}),
	}}, WithHandler("apply_label", HandlerFunc(func(_ context.Context, _ types.Record, a types.Action) error {
		label, _ := a.Param("label")
		got = append(got, label)
		return nil
	})))

	out := o.Organize(context.Background(), types.Record{"subject": "anything"})
	if len(out.Applied()) != 1 || !reflect.DeepEqual(got, []string{"receipts"}) {
		t.Errorf("custom handler applied %v with labels %v", out.Applied(), got)
	}
}

func TestDispatch_ContextCancelled(t *testing.T) {
	var logs bytes.Buffer
	o := newOrganizer(t, &logs, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := o.Dispatch(ctx, types.Record{}, []types.MatchedAction{
		{RuleID: "d", Action: types.Action{Type: types.ActionDelete}},
	})
	if !errors.Is(out.Err, context.Canceled) || len(out.Reports) != 0 {
		t.Errorf("Dispatch(cancelled) = %+v, want context.Canceled and no reports", out)
	}
}

func TestBuiltinHandlers_CoverAllKinds(t *testing.T) {
	handlers := BuiltinHandlers(slog.Default())
	for _, kind := range types.ActionKinds {
		if _, ok := handlers[kind]; !ok {
			t.Errorf("no built-in handler for %s", kind)
		}
	}
}

func TestDispatch_StopProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	kinds := []types.ActionKind{types.ActionMarkAsRead, types.ActionDelete, types.ActionNoOp, types.ActionStopProcessing, "custom"}
	o := New(mustEmptyEngine(t), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))

	properties.Property("nothing is dispatched after stop_processing", prop.ForAll(
		func(idx []int) bool {
			matched := make([]types.MatchedAction, len(idx))
			for i, k := range idx {
				matched[i] = types.MatchedAction{Action: types.Action{Type: kinds[k]}}
			}
			out := o.Dispatch(context.Background(), types.Record{}, matched)

			want := len(matched)
			for i, m := range matched {
				if m.Action.Type == types.ActionStopProcessing {
					want = i + 1
					break
				}
			}
			if len(out.Reports) != want {
				return false
			}
			for i, r := range out.Reports {
				if r.Action.Type == types.ActionStopProcessing && i != len(out.Reports)-1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(kinds)-1)),
	))

	properties.TestingRun(t)
}

func mustEmptyEngine(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine(types.RuleSet{})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}
