package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/inboxkeeper/internal/core/metrics"
	"github.com/solatis/inboxkeeper/internal/links"
	"github.com/solatis/inboxkeeper/internal/mailbox"
	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Batch runs.
 *
 * A Runner walks a mailbox source and, for each message not yet recorded
 * in the store:
 *   1. builds the record and organizes it
 *   2. extracts the body links (HTML anchors, else plain-text URLs)
 *   3. records message, reports and links in one store call
 *
 * At most BatchSize new messages are organized per run; already-processed
 * messages do not count. A store failure aborts the run, since continuing
 * would organize messages that can never be checkpointed. Handler failures
 * do not: they are part of the recorded reports.
 *
 * When ProcessedFolder is set and the source can move messages, each
 * recorded message is moved there afterwards. A failed move is logged only:
 * the checkpoint already keeps the message from being organized again.
 *
 * Dry runs organize and extract but never touch the store, not even to
 * check the checkpoint, and never move messages.
 *
 * Cancellation is honored between messages. The message in progress is
 * still organized, recorded and moved before the run returns ctx.Err().
 */

// Source yields mailbox messages.
type Source interface {
	Walk(ctx context.Context, fn mailbox.WalkFunc) error
}

// Mover is implemented by sources that can file a message away.
type Mover interface {
	Move(name, folder string) error
}

// Store persists organize results.
type Store interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	RecordMessage(ctx context.Context, pm types.ProcessedMessage) error
}

// RunConfig configures a Runner.
type RunConfig struct {
	Folder          string // label stored with each message
	ProcessedFolder string // where recorded messages are moved, empty to keep them
	BatchSize       int    // zero means unlimited
	DryRun          bool
}

// RunStats summarizes a run.
type RunStats struct {
	RunID     types.RunID
	Organized int // messages organized in this run
	Skipped   int // messages recorded by an earlier run
	Applied   int // successfully applied actions
	Failed    int // actions not applied
	Links     int
	Stopped   int // messages whose dispatch ended at stop_processing
	Moved     int
}

// Runner executes batch runs.
type Runner struct {
	organizer *Organizer
	store     Store
	cfg       RunConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner creates a Runner. store may be nil for dry runs.
func NewRunner(o *Organizer, store Store, cfg RunConfig) *Runner {
	return &Runner{
		organizer: o,
		store:     store,
		cfg:       cfg,
		logger:    o.logger,
		now:       time.Now,
	}
}

// Run organizes the unprocessed messages of src. On cancellation it returns
// the stats so far together with ctx.Err().
func (r *Runner) Run(ctx context.Context, src Source) (RunStats, error) {
	if r.store == nil && !r.cfg.DryRun {
		return RunStats{}, errors.New("organize run requires a store unless dry run")
	}

	start := r.now()
	stats := RunStats{RunID: types.NewRunID()}
	logger := r.logger.With("run_id", string(stats.RunID), "dry_run", r.cfg.DryRun)
	logger.Info("organize run started", "folder", r.cfg.Folder, "batch_size", r.cfg.BatchSize)

	err := src.Walk(ctx, func(msg *mailbox.Message) error {
		if r.cfg.BatchSize > 0 && stats.Organized >= r.cfg.BatchSize {
			return mailbox.SkipAll
		}

		if !r.cfg.DryRun {
			done, err := r.store.IsProcessed(ctx, msg.ID)
			if err != nil {
				return err
			}
			if done {
				stats.Skipped++
				metrics.MessagesTotal.WithLabelValues(metrics.ResultSkipped).Inc()
				logger.Debug("message already processed", "message_id", msg.ID, "file", msg.Name)
				return nil
			}
		}

		// Once started, a message is organized and recorded in full so a
		// cancelled run never leaves applied actions without a checkpoint.
		msgCtx := context.WithoutCancel(ctx)

		record := msg.Record()
		outcome := r.organizer.Organize(msgCtx, record)
		if outcome.Err != nil {
			return outcome.Err
		}

		found := extractLinks(msg)
		applied := len(outcome.Applied())
		stats.Organized++
		stats.Applied += applied
		stats.Failed += len(outcome.Reports) - applied
		stats.Links += len(found)
		if outcome.Stopped {
			stats.Stopped++
		}
		metrics.MessagesTotal.WithLabelValues(metrics.ResultOrganized).Inc()
		metrics.LinksExtracted.Add(float64(len(found)))

		logger.Info("organized message",
			"message_id", msg.ID,
			"subject", record.Subject(),
			"actions_applied", applied,
			"actions_failed", len(outcome.Reports)-applied,
			"links", len(found),
		)

		if r.cfg.DryRun {
			return nil
		}
		err := r.store.RecordMessage(msgCtx, types.ProcessedMessage{
			RunID:       stats.RunID,
			MessageID:   msg.ID,
			FileName:    msg.Name,
			Subject:     msg.Subject,
			Sender:      msg.From,
			Folder:      r.cfg.Folder,
			ProcessedAt: r.now(),
			Reports:     outcome.Reports,
			Links:       found,
		})
		if err != nil {
			return err
		}

		if mover, ok := src.(Mover); ok && r.cfg.ProcessedFolder != "" {
			if err := mover.Move(msg.Name, r.cfg.ProcessedFolder); err != nil {
				logger.Warn("failed to move processed message", "file", msg.Name, "error", err)
			} else {
				stats.Moved++
			}
		}
		return nil
	})

	logger.Info("organize run finished",
		"organized", stats.Organized,
		"skipped", stats.Skipped,
		"applied", stats.Applied,
		"failed", stats.Failed,
		"links", stats.Links,
	)

	metrics.RunDuration.Observe(r.now().Sub(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			metrics.RunsTotal.WithLabelValues(metrics.ResultCancelled).Inc()
			return stats, ctxErr
		}
		metrics.RunsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return stats, fmt.Errorf("organize run %s: %w", stats.RunID, err)
	}
	metrics.RunsTotal.WithLabelValues(metrics.ResultCompleted).Inc()
	return stats, nil
}

// extractLinks prefers anchors from the HTML part and falls back to URLs in
// the plain-text body.
func extractLinks(msg *mailbox.Message) []string {
	if msg.HTMLBody != "" {
		if found := links.Unique(links.All(msg.HTMLBody, true)); len(found) > 0 {
			return found
		}
	}
	return links.Unique(links.All(msg.TextBody, false))
}
