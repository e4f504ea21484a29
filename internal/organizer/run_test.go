package organizer

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/solatis/inboxkeeper/internal/mailbox"
	"github.com/solatis/inboxkeeper/internal/types"
)

type sliceSource []*mailbox.Message

func (s sliceSource) Walk(ctx context.Context, fn mailbox.WalkFunc) error {
	for _, msg := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			if errors.Is(err, mailbox.SkipAll) {
				return nil
			}
			return err
		}
	}
	return nil
}

type memoryStore struct {
	done     map[string]bool
	recorded []types.ProcessedMessage
	failWith error
}

func newMemoryStore(processed ...string) *memoryStore {
	s := &memoryStore{done: make(map[string]bool)}
	for _, id := range processed {
		s.done[id] = true
	}
	return s
}

func (s *memoryStore) IsProcessed(_ context.Context, id string) (bool, error) {
	return s.done[id], nil
}

func (s *memoryStore) RecordMessage(_ context.Context, pm types.ProcessedMessage) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.done[pm.MessageID] = true
	s.recorded = append(s.recorded, pm)
	return nil
}

func testMessages() sliceSource {
	return sliceSource{
		{ID: "1@x", Name: "1.eml", Subject: "Invoice 42", From: "billing@vendor.com",
			TextBody: "Pay at https://vendor.com/pay or https://vendor.com/pay"},
		{ID: "2@x", Name: "2.eml", Subject: "Weekly digest", From: "news@letters.io",
			HTMLBody: `<p><a href="https://letters.io/read">read</a></p>`, TextBody: "https://ignored.example"},
		{ID: "3@x", Name: "3.eml", Subject: "Lunch?", From: "friend@example.com"},
	}
}

func runnerRules() []types.Rule {
	return []types.Rule{
		{
			ID:         "friends",
			Priority:   prio(0),
			Conditions: []types.Condition{{Field: "from", Operation: "equals", Value: "friend@example.com"}},
			Action:     action(types.ActionStopProcessing, nil),
		},
		{
			ID:         "invoices",
			Priority:   prio(10),
			Conditions: []types.Condition{{Field: "subject", Operation: "starts_with", Value: "invoice"}},
			Action:     action(types.ActionMoveToFolder, map[string]any{"target": "Invoices"}),
		},
		{
			ID:     "read-all",
			Action: action(types.ActionMarkAsRead, nil),
		},
	}
}

func TestRunner_Run(t *testing.T) {
	var logs bytes.Buffer
	o := newOrganizer(t, &logs, runnerRules())
	store := newMemoryStore("3@x")

	stats, err := NewRunner(o, store, RunConfig{Folder: "INBOX"}).Run(context.Background(), testMessages())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if stats.Organized != 2 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 2 organized, 1 skipped", stats)
	}
	if stats.Applied != 3 || stats.Failed != 0 {
		t.Errorf("applied/failed = %d/%d, want 3/0", stats.Applied, stats.Failed)
	}
	if len(store.recorded) != 2 {
		t.Fatalf("recorded %d messages, want 2", len(store.recorded))
	}

	first := store.recorded[0]
	if first.RunID != stats.RunID || first.Folder != "INBOX" || first.Sender != "billing@vendor.com" {
		t.Errorf("recorded[0] = %+v", first)
	}
	if want := []string{"https://vendor.com/pay"}; !reflect.DeepEqual(first.Links, want) {
		t.Errorf("recorded[0].Links = %v, want %v", first.Links, want)
	}
	if len(first.Reports) != 2 || first.Reports[0].RuleID != "invoices" {
		t.Errorf("recorded[0].Reports = %+v", first.Reports)
	}
	if want := []string{"https://letters.io/read"}; !reflect.DeepEqual(store.recorded[1].Links, want) {
		t.Errorf("recorded[1].Links = %v, want HTML anchors", store.recorded[1].Links)
	}
}

func TestRunner_BatchSize(t *testing.T) {
	var logs bytes.Buffer
	store := newMemoryStore()
	r := NewRunner(newOrganizer(t, &logs, runnerRules()), store, RunConfig{BatchSize: 2})

	stats, err := r.Run(context.Background(), testMessages())
	if err != nil || stats.Organized != 2 {
		t.Fatalf("Run() = %+v, %v, want 2 organized", stats, err)
	}

	// the next run picks up where the checkpoint left off
	stats, err = r.Run(context.Background(), testMessages())
	if err != nil || stats.Organized != 1 || stats.Skipped != 2 || stats.Stopped != 1 {
		t.Errorf("second Run() = %+v, %v, want 1 organized (stopped), 2 skipped", stats, err)
	}
}

func TestRunner_DryRun(t *testing.T) {
	var logs bytes.Buffer
	stats, err := NewRunner(newOrganizer(t, &logs, runnerRules()), nil, RunConfig{DryRun: true}).
		Run(context.Background(), testMessages())
	if err != nil {
		t.Fatalf("Run(dry) error = %v", err)
	}
	if stats.Organized != 3 || stats.Links != 2 {
		t.Errorf("stats = %+v, want 3 organized and 2 links", stats)
	}

	if _, err := NewRunner(newOrganizer(t, &logs, nil), nil, RunConfig{}).Run(context.Background(), testMessages()); err == nil {
		t.Error("Run() without store error = nil, want error")
	}
}

func TestRunner_Errors(t *testing.T) {
	var logs bytes.Buffer
	boom := errors.New("disk full")
	store := newMemoryStore()
	store.failWith = boom

	_, err := NewRunner(newOrganizer(t, &logs, runnerRules()), store, RunConfig{}).Run(context.Background(), testMessages())
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want store failure", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRunner(newOrganizer(t, &logs, runnerRules()), newMemoryStore(), RunConfig{}).Run(ctx, testMessages())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestRunner_CancelMidMessage(t *testing.T) {
	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := newOrganizer(t, &logs, runnerRules(), WithHandler(types.ActionMoveToFolder,
		HandlerFunc(func(context.Context, types.Record, types.Action) error {
			cancel()
			return nil
		})))
	store := newMemoryStore()

	stats, err := NewRunner(o, store, RunConfig{}).Run(ctx, testMessages())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if stats.Organized != 1 || stats.Applied != 2 {
		t.Errorf("stats = %+v, want 1 organized with 2 applied", stats)
	}
	if len(store.recorded) != 1 || store.recorded[0].MessageID != "1@x" {
		t.Fatalf("recorded = %+v, want only 1@x", store.recorded)
	}
	if got := len(store.recorded[0].Reports); got != 2 {
		t.Errorf("recorded %d reports, want move and mark_as_read", got)
	}
	if store.done["2@x"] {
		t.Error("message after cancellation was organized")
	}
}

type movingSource struct {
	sliceSource
	moved []string
}

func (s *movingSource) Move(name, folder string) error {
	if folder != "Processed" {
		return errors.New("unexpected folder " + folder)
	}
	s.moved = append(s.moved, name)
	return nil
}

func TestRunner_MovesProcessed(t *testing.T) {
	var logs bytes.Buffer
	src := &movingSource{sliceSource: testMessages()}
	o := newOrganizer(t, &logs, runnerRules())

	stats, err := NewRunner(o, newMemoryStore("2@x"), RunConfig{ProcessedFolder: "Processed"}).Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := []string{"1.eml", "3.eml"}; !reflect.DeepEqual(src.moved, want) || stats.Moved != 2 {
		t.Errorf("moved = %v (stats %d), want %v", src.moved, stats.Moved, want)
	}

	src.moved = nil
	if _, err := NewRunner(o, nil, RunConfig{ProcessedFolder: "Processed", DryRun: true}).Run(context.Background(), src); err != nil {
		t.Fatalf("Run(dry) error = %v", err)
	}
	if len(src.moved) != 0 {
		t.Errorf("dry run moved %v, want nothing", src.moved)
	}
}
