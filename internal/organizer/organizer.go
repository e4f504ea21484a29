// Package organizer dispatches the actions selected by the rule engine.
//
// The Organizer asks the engine for a record's matched actions and hands
// each one, in priority order, to the handler registered for its kind. The
// built-in handlers simulate their mailbox effect by logging it; embedding
// applications replace or extend them with WithHandler.
package organizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solatis/inboxkeeper/internal/core/metrics"
	"github.com/solatis/inboxkeeper/internal/rules"
	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Dispatch sequencing.
 *
 * For each matched action, in order:
 *   1. Halt if an earlier action in this pass was stop_processing
 *   2. Halt if ctx is done (reported on Outcome.Err)
 *   3. Look up the handler by kind; unknown kind -> warning, not applied
 *   4. Invoke the handler; an error means not applied, dispatch continues
 *
 * Every dispatched action yields one ActionReport, successful or not, and
 * one inboxkeeper_actions_total increment. Outcome.Applied returns the
 * successful actions only.
 *
 * stop_processing is re-checked here even though the engine already stops
 * collecting at it: Dispatch accepts action lists from any source (the gRPC
 * API forwards client-supplied lists), not only from Engine.Evaluate.
 */

// Handler performs one kind of action on a record.
// Returning an error marks the action as not applied.
type Handler interface {
	Handle(ctx context.Context, record types.Record, action types.Action) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, record types.Record, action types.Action) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, record types.Record, action types.Action) error {
	return f(ctx, record, action)
}

// Outcome is the result of one dispatch pass.
type Outcome struct {
	Reports []types.ActionReport
	Stopped bool  // a stop_processing action ended the pass
	Err     error // context error if the pass was interrupted
}

// Applied returns the successfully applied actions in dispatch order.
func (o Outcome) Applied() []types.Action {
	var applied []types.Action
	for _, r := range o.Reports {
		if r.Applied {
			applied = append(applied, r.Action)
		}
	}
	return applied
}

// Failed returns the reports of actions that were not applied.
func (o Outcome) Failed() []types.ActionReport {
	var failed []types.ActionReport
	for _, r := range o.Reports {
		if !r.Applied {
			failed = append(failed, r)
		}
	}
	return failed
}

// Organizer couples a rule engine with a handler table.
type Organizer struct {
	engine   *rules.Engine
	handlers map[types.ActionKind]Handler
	logger   *slog.Logger
	custom   map[types.ActionKind]Handler
}

// Option configures an Organizer.
type Option func(*Organizer)

// WithLogger sets the logger used by the organizer and built-in handlers.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Organizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHandler registers h for kind, replacing any built-in handler.
func WithHandler(kind types.ActionKind, h Handler) Option {
	return func(o *Organizer) {
		o.custom[kind] = h
	}
}

// New creates an Organizer over engine with the built-in handlers.
func New(engine *rules.Engine, opts ...Option) *Organizer {
	o := &Organizer{
		engine: engine,
		logger: slog.Default(),
		custom: make(map[types.ActionKind]Handler),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.handlers = BuiltinHandlers(o.logger)
	for kind, h := range o.custom {
		o.handlers[kind] = h
	}
	return o
}

// Engine returns the organizer's rule engine.
func (o *Organizer) Engine() *rules.Engine {
	return o.engine
}

// Organize evaluates record and dispatches the matched actions.
func (o *Organizer) Organize(ctx context.Context, record types.Record) Outcome {
	return o.Dispatch(ctx, record, o.engine.Evaluate(record))
}

// Dispatch runs matched actions against record in the given order.
func (o *Organizer) Dispatch(ctx context.Context, record types.Record, matched []types.MatchedAction) Outcome {
	var out Outcome
	subject := record.Subject()

	for _, m := range matched {
		if out.Stopped {
			o.logger.Info("stopping further action processing",
				"subject", subject,
				"reason", string(types.ActionStopProcessing),
			)
			break
		}
		if err := ctx.Err(); err != nil {
			out.Err = err
			break
		}

		report := types.ActionReport{RuleID: m.RuleID, Action: m.Action}

		handler, ok := o.handlers[m.Action.Type]
		if !ok {
			report.Err = fmt.Errorf("%w: %q", types.ErrUnknownAction, m.Action.Type)
			o.logger.Warn("unknown action type",
				"type", string(m.Action.Type),
				"rule_id", m.RuleID,
				"subject", subject,
				"action", m.Action.String(),
			)
			out.Reports = append(out.Reports, report)
			metrics.ActionsTotal.WithLabelValues(metrics.UnknownAction, metrics.ResultFailed).Inc()
			continue
		}

		if err := handler.Handle(ctx, record, m.Action); err != nil {
			report.Err = err
			o.logger.Error("failed to apply action",
				"type", string(m.Action.Type),
				"rule_id", m.RuleID,
				"subject", subject,
				"action", m.Action.String(),
				"error", err,
			)
		} else {
			report.Applied = true
		}
		out.Reports = append(out.Reports, report)
		metrics.ActionsTotal.WithLabelValues(string(m.Action.Type), actionResult(report.Applied)).Inc()

		if m.Action.Type == types.ActionStopProcessing {
			out.Stopped = true
		}
	}

	return out
}

func actionResult(applied bool) string {
	if applied {
		return metrics.ResultApplied
	}
	return metrics.ResultFailed
}
