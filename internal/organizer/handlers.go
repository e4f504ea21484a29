package organizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solatis/inboxkeeper/internal/types"
)

// simulated is a built-in handler that logs the effect it stands for.
// param names the required action parameter, empty for kinds without one.
type simulated struct {
	logger *slog.Logger
	level  slog.Level
	msg    string
	param  string
	attr   string
}

func (s simulated) Handle(ctx context.Context, record types.Record, action types.Action) error {
	attrs := []any{"subject", record.Subject()}
	if id, ok := record["message_id"].(string); ok && id != "" {
		attrs = append(attrs, "message_id", id)
	}

	if s.param != "" {
		value, ok := action.Param(s.param)
		if !ok {
			return fmt.Errorf("%s: %w: %q", action.Type, types.ErrMissingParameter, s.param)
		}
		attrs = append(attrs, s.attr, value)
	}

	s.logger.Log(ctx, s.level, s.msg, attrs...)
	return nil
}

// BuiltinHandlers returns one handler per built-in ActionKind, logging to
// logger. The returned map is owned by the caller.
func BuiltinHandlers(logger *slog.Logger) map[types.ActionKind]Handler {
	info := func(msg, param, attr string) Handler {
		return simulated{logger: logger, level: slog.LevelInfo, msg: msg, param: param, attr: attr}
	}

	return map[types.ActionKind]Handler{
		types.ActionMoveToFolder:      info("simulating move to folder", "target", "folder"),
		types.ActionDelete:            simulated{logger: logger, level: slog.LevelWarn, msg: "simulating deletion"},
		types.ActionAddCategory:       info("simulating adding category", "category_name", "category"),
		types.ActionAddFlag:           info("simulating adding flag", "flag_type", "flag"),
		types.ActionRemoveFlag:        info("simulating removing flag", "flag_type", "flag"),
		types.ActionForwardTo:         info("simulating forward", "target_email", "to"),
		types.ActionReplyWithTemplate: info("simulating reply with template", "template_id", "template"),
		types.ActionMarkAsRead:        info("simulating mark as read", "", ""),
		types.ActionMarkAsUnread:      info("simulating mark as unread", "", ""),
		types.ActionSetImportance:     info("simulating set importance", "level", "level"),
		types.ActionStopProcessing:    info("encountered stop_processing", "", ""),
		types.ActionNoOp:              info("performing no operation", "", ""),
	}
}
