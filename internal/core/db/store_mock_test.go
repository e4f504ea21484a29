package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/solatis/inboxkeeper/internal/types"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	store, err := NewStore(sqlx.NewDb(conn, "sqlite3"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store, mock
}

func mockMessage() types.ProcessedMessage {
	return types.ProcessedMessage{
		RunID:       "run-1",
		MessageID:   "m1@example.com",
		FileName:    "001.eml",
		Subject:     "Invoice",
		Sender:      "billing@vendor.com",
		Folder:      "INBOX",
		ProcessedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Reports: []types.ActionReport{
			{RuleID: "r1", Action: types.Action{Type: types.ActionMarkAsRead}, Applied: true},
		},
		Links: []string{"https://vendor.com/pay"},
	}
}

func TestStore_RecordMessageRollsBack(t *testing.T) {
	diskFull := errors.New("disk full")

	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
	}{
		{
			name: "action insert fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO processed_messages").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("INSERT INTO applied_actions").WillReturnError(diskFull)
			},
		},
		{
			name: "link insert fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO processed_messages").WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("INSERT INTO applied_actions").
					WithArgs("run-1", "m1@example.com", 0, "r1", "mark_as_read", sqlmock.AnyArg(), true, nil).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("INSERT INTO extracted_links").WillReturnError(diskFull)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT COUNT\(\*\) FROM processed_messages`).
				WithArgs("m1@example.com").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
			tt.expect(mock)
			mock.ExpectRollback()

			err := store.RecordMessage(context.Background(), mockMessage())
			if !errors.Is(err, diskFull) {
				t.Errorf("RecordMessage() error = %v, want disk full", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestStore_RecordMessageAlreadyProcessed(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM processed_messages`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	if err := store.RecordMessage(context.Background(), mockMessage()); !errors.Is(err, types.ErrAlreadyProcessed) {
		t.Errorf("RecordMessage() error = %v, want ErrAlreadyProcessed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_IsProcessedError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).WillReturnError(errors.New("connection reset"))

	if _, err := store.IsProcessed(context.Background(), "m1"); err == nil {
		t.Error("IsProcessed() error = nil, want error")
	}
}
