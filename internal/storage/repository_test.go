package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stash/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func createTestAccount(t *testing.T, repo *Repository, owner string, balanceCents int64) core.Account {
	t.Helper()
	a, err := repo.CreateAccount(context.Background(), core.Account{
		OwnerID:  owner,
		Name:     "checking",
		Type:     core.AccountMain,
		Balance:  core.Money{Cents: balanceCents},
		Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func createTestGoal(t *testing.T, repo *Repository, owner string, targetCents int64) core.Goal {
	t.Helper()
	g, err := repo.CreateGoal(context.Background(), core.Goal{
		OwnerID: owner,
		Name:    "vacation",
		Target:  core.Money{Cents: targetCents},
	})
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	return g
}

func TestCommitBatchTransferConservation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	from := createTestAccount(t, repo, "u1", 10000)
	to := createTestAccount(t, repo, "u1", 2000)

	tx := core.Transaction{
		Type:          core.TxTransfer,
		Amount:        core.Money{Cents: 4000},
		Currency:      "EUR",
		Description:   "move to savings",
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		OccurredAt:    time.Now(),
	}
	err := repo.CommitBatch(ctx, "u1", []Write{
		InsertTransaction(&tx),
		AddToBalance(from.ID, -4000),
		AddToBalance(to.ID, 4000),
	})
	if err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	if tx.ID == 0 {
		t.Error("expected transaction ID to be assigned")
	}

	gotFrom, _ := repo.GetAccount(ctx, "u1", from.ID)
	gotTo, _ := repo.GetAccount(ctx, "u1", to.ID)
	if gotFrom.Balance.Cents != 6000 {
		t.Errorf("from balance = %d, want 6000", gotFrom.Balance.Cents)
	}
	if gotTo.Balance.Cents != 6000 {
		t.Errorf("to balance = %d, want 6000", gotTo.Balance.Cents)
	}
	if sum := gotFrom.Balance.Cents + gotTo.Balance.Cents; sum != 12000 {
		t.Errorf("total balance = %d, want 12000", sum)
	}
}

func TestCommitBatchRollsBackOnFailure(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := createTestAccount(t, repo, "u1", 5000)

	tx := core.Transaction{
		Type:          core.TxExpense,
		Amount:        core.Money{Cents: 1000},
		Currency:      "EUR",
		Description:   "groceries",
		FromAccountID: acc.ID,
		OccurredAt:    time.Now(),
	}
	// Second write references an account that does not exist
	err := repo.CommitBatch(ctx, "u1", []Write{
		InsertTransaction(&tx),
		AddToBalance(acc.ID, -1000),
		AddToBalance(9999, -1000),
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("CommitBatch error = %v, want ErrNotFound", err)
	}

	got, _ := repo.GetAccount(ctx, "u1", acc.ID)
	if got.Balance.Cents != 5000 {
		t.Errorf("balance after failed batch = %d, want 5000 (untouched)", got.Balance.Cents)
	}
	if txs, _ := repo.ListTransactions(ctx, "u1", 10); len(txs) != 0 {
		t.Errorf("transactions after failed batch = %d, want 0", len(txs))
	}
}

func TestGuardedGoalWithdrawal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := createTestAccount(t, repo, "u1", 0)
	goal := createTestGoal(t, repo, "u1", 50000)

	if err := repo.CommitBatch(ctx, "u1", []Write{AddToGoal(goal.ID, 10000, false)}); err != nil {
		t.Fatalf("seed goal: %v", err)
	}

	tx := core.Transaction{
		Type:        core.TxGoalPayment,
		Amount:      core.Money{Cents: 15000},
		Currency:    "EUR",
		Description: "withdraw",
		ToAccountID: acc.ID,
		GoalID:      goal.ID,
		OccurredAt:  time.Now(),
	}
	err := repo.CommitBatch(ctx, "u1", []Write{
		InsertTransaction(&tx),
		AddToGoal(goal.ID, -15000, true),
		AddToBalance(acc.ID, 15000),
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("CommitBatch error = %v, want ErrInsufficientFunds", err)
	}

	gotGoal, _ := repo.GetGoal(ctx, "u1", goal.ID)
	if gotGoal.Current.Cents != 10000 {
		t.Errorf("goal current = %d, want 10000 (untouched)", gotGoal.Current.Cents)
	}
	gotAcc, _ := repo.GetAccount(ctx, "u1", acc.ID)
	if gotAcc.Balance.Cents != 0 {
		t.Errorf("account balance = %d, want 0 (untouched)", gotAcc.Balance.Cents)
	}
}

func TestGoalDepositNotCapped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	goal := createTestGoal(t, repo, "u1", 20000)

	if err := repo.CommitBatch(ctx, "u1", []Write{AddToGoal(goal.ID, 18000, false)}); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	if err := repo.CommitBatch(ctx, "u1", []Write{AddToGoal(goal.ID, 5000, false)}); err != nil {
		t.Fatalf("overflowing deposit: %v", err)
	}

	got, _ := repo.GetGoal(ctx, "u1", goal.ID)
	if got.Current.Cents != 23000 {
		t.Errorf("goal current = %d, want 23000 (deposits are recorded in full)", got.Current.Cents)
	}
}

func TestCompleteGoalTransitionsOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	goal := createTestGoal(t, repo, "u1", 1000)

	first, err := repo.CompleteGoal(ctx, "u1", goal.ID)
	if err != nil {
		t.Fatalf("CompleteGoal: %v", err)
	}
	if !first {
		t.Error("first completion should claim the transition")
	}
	second, err := repo.CompleteGoal(ctx, "u1", goal.ID)
	if err != nil {
		t.Fatalf("CompleteGoal: %v", err)
	}
	if second {
		t.Error("second completion should not claim the transition")
	}
}

func TestClaimAutoPaymentLease(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := createTestAccount(t, repo, "u1", 10000)
	goal := createTestGoal(t, repo, "u1", 50000)

	scheduled := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg := core.AutoTransferConfig{
		Enabled:       true,
		FromAccountID: acc.ID,
		Amount:        core.Money{Cents: 2500},
		Frequency:     core.FrequencyMonthly,
		NextPaymentAt: scheduled,
	}
	if err := repo.SetAutoTransfer(ctx, "u1", goal.ID, cfg); err != nil {
		t.Fatalf("SetAutoTransfer: %v", err)
	}

	now := scheduled.Add(time.Hour)
	next := cfg.Frequency.Next(scheduled)

	claimed, err := repo.ClaimAutoPayment(ctx, "u1", goal.ID, scheduled, next, now)
	if err != nil {
		t.Fatalf("ClaimAutoPayment: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should succeed")
	}

	// Same period claimed again, as a concurrent processor would
	claimed, err = repo.ClaimAutoPayment(ctx, "u1", goal.ID, scheduled, next, now)
	if err != nil {
		t.Fatalf("ClaimAutoPayment: %v", err)
	}
	if claimed {
		t.Error("second claim of the same period should lose")
	}

	got, _ := repo.GetGoal(ctx, "u1", goal.ID)
	if !got.AutoPayment.NextPaymentAt.Equal(next) {
		t.Errorf("next_payment_at = %v, want %v", got.AutoPayment.NextPaymentAt, next)
	}
	if got.AutoPayment.LastRunAt.IsZero() {
		t.Error("auto_last_run_at should be recorded")
	}
}

func TestOwnerScoping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := createTestAccount(t, repo, "u1", 5000)

	if _, err := repo.GetAccount(ctx, "u2", acc.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-owner GetAccount error = %v, want ErrNotFound", err)
	}
	err := repo.CommitBatch(ctx, "u2", []Write{AddToBalance(acc.ID, 1000)})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-owner balance write error = %v, want ErrNotFound", err)
	}
}

func TestExportQueue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := createTestAccount(t, repo, "u1", 5000)
	tx := core.Transaction{
		Type:          core.TxExpense,
		Amount:        core.Money{Cents: 700},
		Currency:      "EUR",
		Description:   "coffee",
		FromAccountID: acc.ID,
		OccurredAt:    time.Now(),
	}
	if err := repo.CommitBatch(ctx, "u1", []Write{
		InsertTransaction(&tx),
		AddToBalance(acc.ID, -700),
	}); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	pending, err := repo.ListPendingExport(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingExport: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != tx.ID {
		t.Fatalf("pending = %+v, want the committed transaction", pending)
	}

	if err := repo.MarkExported(ctx, tx.ID); err != nil {
		t.Fatalf("MarkExported: %v", err)
	}
	pending, err = repo.ListPendingExport(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingExport: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after export = %d, want 0", len(pending))
	}
}

func TestSubscribeReceivesSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acc := createTestAccount(t, repo, "u1", 1000)
	ch := repo.Subscribe(ctx, "u1")

	tx := core.Transaction{
		Type:        core.TxIncome,
		Amount:      core.Money{Cents: 500},
		Currency:    "EUR",
		Description: "refund",
		ToAccountID: acc.ID,
		OccurredAt:  time.Now(),
	}
	if err := repo.CommitBatch(ctx, "u1", []Write{
		InsertTransaction(&tx),
		AddToBalance(acc.ID, 500),
	}); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	select {
	case snap := <-ch:
		if snap.TotalBalance.Cents != 1500 {
			t.Errorf("snapshot total = %d, want 1500", snap.TotalBalance.Cents)
		}
		if len(snap.Transactions) != 1 {
			t.Errorf("snapshot transactions = %d, want 1", len(snap.Transactions))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot received after commit")
	}
}

func TestMonthExpenseTotal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acc := createTestAccount(t, repo, "u1", 100000)
	march := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for _, cents := range []int64{2000, 3500} {
		tx := core.Transaction{
			Type:          core.TxExpense,
			Amount:        core.Money{Cents: cents},
			Currency:      "EUR",
			Description:   "expense",
			FromAccountID: acc.ID,
			OccurredAt:    march,
		}
		if err := repo.CommitBatch(ctx, "u1", []Write{
			InsertTransaction(&tx),
			AddToBalance(acc.ID, -cents),
		}); err != nil {
			t.Fatalf("CommitBatch: %v", err)
		}
	}
	// Different month, must not count
	other := core.Transaction{
		Type:          core.TxExpense,
		Amount:        core.Money{Cents: 9999},
		Currency:      "EUR",
		Description:   "april expense",
		FromAccountID: acc.ID,
		OccurredAt:    march.AddDate(0, 1, 0),
	}
	if err := repo.CommitBatch(ctx, "u1", []Write{
		InsertTransaction(&other),
		AddToBalance(acc.ID, -9999),
	}); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}

	total, err := repo.MonthExpenseTotal(ctx, "u1", acc.ID, 2026, time.March)
	if err != nil {
		t.Fatalf("MonthExpenseTotal: %v", err)
	}
	if total != 5500 {
		t.Errorf("MonthExpenseTotal = %d, want 5500", total)
	}
}
