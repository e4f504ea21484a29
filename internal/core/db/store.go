package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/inboxkeeper/internal/types"
)

// Store records organize results.
type Store struct {
	db      *sqlx.DB
	queries *Queries
	now     func() time.Time
}

// NewStore loads the named queries for db.
func NewStore(db *sqlx.DB) (*Store, error) {
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, queries: queries, now: time.Now}, nil
}

// Queries exposes the named queries, e.g. for the API authenticator.
func (s *Store) Queries() *Queries {
	return s.queries
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IsProcessed reports whether messageID was recorded by an earlier run.
func (s *Store) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var n int
	if err := s.queries.GetContext(ctx, "is-processed", &n, messageID); err != nil {
		return false, fmt.Errorf("failed to check message %s: %w", messageID, err)
	}
	return n > 0, nil
}

// RecordMessage stores a processed message with its action reports and
// links in one transaction. Returns ErrAlreadyProcessed if the message was
// recorded before.
func (s *Store) RecordMessage(ctx context.Context, pm types.ProcessedMessage) error {
	processedAt := pm.ProcessedAt
	if processedAt.IsZero() {
		processedAt = s.now()
	}
	processedAt = processedAt.UTC()

	return s.queries.InTx(ctx, func(tx *Tx) error {
		var n int
		if err := tx.GetContext(ctx, "is-processed", &n, pm.MessageID); err != nil {
			return fmt.Errorf("failed to check message %s: %w", pm.MessageID, err)
		}
		if n > 0 {
			return fmt.Errorf("%s: %w", pm.MessageID, types.ErrAlreadyProcessed)
		}

		if _, err := tx.ExecContext(ctx, "insert-processed-message",
			pm.MessageID, string(pm.RunID), pm.FileName, pm.Subject, pm.Sender, pm.Folder, processedAt,
		); err != nil {
			return fmt.Errorf("failed to insert message %s: %w", pm.MessageID, err)
		}

		for i, r := range pm.Reports {
			action, err := r.Action.MarshalJSON()
			if err != nil {
				return fmt.Errorf("failed to encode action %d of %s: %w", i, pm.MessageID, err)
			}
			var errText sql.NullString
			if r.Err != nil {
				errText = sql.NullString{String: r.Err.Error(), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, "insert-applied-action",
				string(pm.RunID), pm.MessageID, i, string(r.RuleID), string(r.Action.Type), string(action), r.Applied, errText,
			); err != nil {
				return fmt.Errorf("failed to insert action %d of %s: %w", i, pm.MessageID, err)
			}
		}

		for _, link := range pm.Links {
			if _, err := tx.ExecContext(ctx, "insert-extracted-link",
				string(pm.RunID), pm.MessageID, link, processedAt,
			); err != nil {
				return fmt.Errorf("failed to insert link for %s: %w", pm.MessageID, err)
			}
		}
		return nil
	})
}

// MessageRow is a stored processed message.
type MessageRow struct {
	MessageID   string    `db:"message_id"`
	RunID       string    `db:"run_id"`
	FileName    string    `db:"file_name"`
	Subject     string    `db:"subject"`
	Sender      string    `db:"sender"`
	Folder      string    `db:"folder"`
	ProcessedAt time.Time `db:"processed_at"`
}

// Message returns the stored message, or ErrNotFound.
func (s *Store) Message(ctx context.Context, messageID string) (*MessageRow, error) {
	var row MessageRow
	err := s.queries.GetContext(ctx, "get-processed-message", &row, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message %s: %w", messageID, err)
	}
	return &row, nil
}

// MessagesByRun lists the messages recorded by one run.
func (s *Store) MessagesByRun(ctx context.Context, runID types.RunID) ([]MessageRow, error) {
	var rows []MessageRow
	if err := s.queries.SelectContext(ctx, "list-processed-messages-by-run", &rows, string(runID)); err != nil {
		return nil, fmt.Errorf("failed to list messages of run %s: %w", runID, err)
	}
	return rows, nil
}

// ActionRow is a stored ActionReport.
type ActionRow struct {
	Seq        int            `db:"seq"`
	RuleID     string         `db:"rule_id"`
	ActionType string         `db:"action_type"`
	Action     string         `db:"action"`
	Applied    bool           `db:"applied"`
	Error      sql.NullString `db:"error"`
}

// Actions lists the action reports of a message in dispatch order.
func (s *Store) Actions(ctx context.Context, messageID string) ([]ActionRow, error) {
	var rows []ActionRow
	if err := s.queries.SelectContext(ctx, "list-applied-actions", &rows, messageID); err != nil {
		return nil, fmt.Errorf("failed to list actions of %s: %w", messageID, err)
	}
	return rows, nil
}

// LinkRow is a stored extracted link.
type LinkRow struct {
	RunID     string    `db:"run_id"`
	MessageID string    `db:"message_id"`
	URL       string    `db:"url"`
	CreatedAt time.Time `db:"created_at"`
}

// Links lists extracted links in insertion order. An empty runID lists the
// links of every run.
func (s *Store) Links(ctx context.Context, runID types.RunID) ([]LinkRow, error) {
	var rows []LinkRow
	var err error
	if runID == "" {
		err = s.queries.SelectContext(ctx, "list-links", &rows)
	} else {
		err = s.queries.SelectContext(ctx, "list-links-by-run", &rows, string(runID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return rows, nil
}

// APIKeyRow is a stored API key without its hash.
type APIKeyRow struct {
	ID         string       `db:"api_key_id"`
	Name       string       `db:"name"`
	SecretID   string       `db:"secret_id"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
}

// APIKeys lists issued API keys, oldest first.
func (s *Store) APIKeys(ctx context.Context) ([]APIKeyRow, error) {
	var rows []APIKeyRow
	if err := s.queries.SelectContext(ctx, "list-api-keys", &rows); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return rows, nil
}
