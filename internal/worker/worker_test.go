package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stash/internal/core"
	"stash/internal/event"
	"stash/internal/export/memory"
	"stash/internal/storage"
)

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func commitExpense(t *testing.T, repo *storage.Repository, owner string, cents int64) core.Transaction {
	t.Helper()
	acc, err := repo.CreateAccount(context.Background(), core.Account{
		OwnerID: owner, Name: "checking", Type: core.AccountMain,
		Balance: core.Money{Cents: 100000}, Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	tx := core.Transaction{
		Type: core.TxExpense, Amount: core.Money{Cents: cents}, Currency: "EUR",
		Description: "expense", FromAccountID: acc.ID, OccurredAt: time.Now(),
	}
	if err := repo.CommitBatch(context.Background(), owner, []storage.Write{
		storage.InsertTransaction(&tx),
		storage.AddToBalance(acc.ID, -cents),
	}); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	return tx
}

func TestNotifierRecordsEvent(t *testing.T) {
	repo := newTestRepo(t)
	notifier := NewNotifier(repo)
	ctx := context.Background()

	e := &event.Event{
		Kind:       event.KindGoalCompleted,
		OwnerID:    "u1",
		Title:      "vacation completed",
		Body:       "Saved 230.00 of 200.00",
		OccurredAt: time.Now().UTC(),
		GoalID:     7,
	}
	if err := notifier.HandleEvent(ctx, e); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	notifications, err := repo.ListNotifications(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifications))
	}
	got := notifications[0]
	if got.Kind != event.KindGoalCompleted || got.Title != "vacation completed" {
		t.Errorf("notification = %+v, want the event's kind and title", got)
	}
	if got.Payload == "" || got.Payload == "{}" {
		t.Error("notification payload should carry the event JSON")
	}
}

func TestNotifierDropsOwnerlessEvent(t *testing.T) {
	repo := newTestRepo(t)
	notifier := NewNotifier(repo)

	if err := notifier.HandleEvent(context.Background(), &event.Event{Kind: event.KindBalanceLow}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	notifications, _ := repo.ListNotifications(context.Background(), "", 10)
	if len(notifications) != 0 {
		t.Errorf("notifications = %d, want 0", len(notifications))
	}
}

func TestExporterDrain(t *testing.T) {
	repo := newTestRepo(t)
	writer := memory.New()
	exporter := NewExporter(repo, writer, 10)
	ctx := context.Background()

	tx := commitExpense(t, repo, "u1", 1200)

	n, err := exporter.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 1 {
		t.Fatalf("exported = %d, want 1", n)
	}
	if rows := writer.Rows(); len(rows) != 1 || rows[0].ID != tx.ID {
		t.Fatalf("writer rows = %+v, want the committed transaction", rows)
	}

	// Queue is now empty
	n, err = exporter.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 0 {
		t.Errorf("second drain exported = %d, want 0", n)
	}
}

func TestExporterMarksFailedRows(t *testing.T) {
	repo := newTestRepo(t)
	writer := memory.New()
	exporter := NewExporter(repo, writer, 10)
	ctx := context.Background()

	tx := commitExpense(t, repo, "u1", 900)
	writer.FailNext = true

	n, err := exporter.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 0 {
		t.Errorf("exported = %d, want 0", n)
	}

	got, err := repo.GetTransaction(ctx, "u1", tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.SyncStatus != core.SyncError {
		t.Errorf("sync status = %q, want %q", got.SyncStatus, core.SyncError)
	}

	// Errored rows are not retried by the drain
	if n, _ := exporter.Drain(ctx); n != 0 {
		t.Errorf("drain after error exported = %d, want 0", n)
	}
}
