package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stash/internal/core"
	"stash/internal/event"
)

// AlertConfig holds the thresholds for post-commit alert events. Zero
// values disable the corresponding alert.
type AlertConfig struct {
	LargeTransactionCents int64
	LowBalanceCents       int64
	CriticalBalanceCents  int64
}

func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		LargeTransactionCents: 50000,
		LowBalanceCents:       10000,
		CriticalBalanceCents:  2500,
	}
}

// emitAlerts inspects a freshly committed transaction and emits the
// threshold events it triggers. All reads here happen after the commit,
// so a concurrent write can shift the balance under us; alerts are
// informational and that is acceptable.
func (s *TransactionService) emitAlerts(ctx context.Context, ownerID string, tx core.Transaction) {
	if s.events == nil {
		return
	}
	now := time.Now().UTC()

	if s.alerts.LargeTransactionCents > 0 && tx.Amount.Cents >= s.alerts.LargeTransactionCents {
		s.publish(ctx, &event.Event{
			Kind:          event.KindLargeTransaction,
			OwnerID:       ownerID,
			Title:         "Large transaction",
			Body:          fmt.Sprintf("%s for %s", tx.Description, tx.Amount),
			OccurredAt:    now,
			TransactionID: tx.ID,
			AmountCents:   tx.Amount.Cents,
		})
	}

	if tx.FromAccountID == 0 {
		return
	}
	account, err := s.store.GetAccount(ctx, ownerID, tx.FromAccountID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read account for alerts",
			"account_id", tx.FromAccountID,
			"error", err)
		return
	}

	switch {
	case account.Balance.IsNegative():
		s.publish(ctx, &event.Event{
			Kind:         event.KindBalanceNegative,
			OwnerID:      ownerID,
			Title:        "Account overdrawn",
			Body:         fmt.Sprintf("%s is at %s", account.Name, account.Balance),
			OccurredAt:   now,
			AccountID:    account.ID,
			BalanceCents: account.Balance.Cents,
		})
	case s.alerts.CriticalBalanceCents > 0 && account.Balance.Cents < s.alerts.CriticalBalanceCents:
		s.publish(ctx, &event.Event{
			Kind:         event.KindBalanceCritical,
			OwnerID:      ownerID,
			Title:        "Balance critically low",
			Body:         fmt.Sprintf("%s is at %s", account.Name, account.Balance),
			OccurredAt:   now,
			AccountID:    account.ID,
			BalanceCents: account.Balance.Cents,
		})
	case s.alerts.LowBalanceCents > 0 && account.Balance.Cents < s.alerts.LowBalanceCents:
		s.publish(ctx, &event.Event{
			Kind:         event.KindBalanceLow,
			OwnerID:      ownerID,
			Title:        "Balance low",
			Body:         fmt.Sprintf("%s is at %s", account.Name, account.Balance),
			OccurredAt:   now,
			AccountID:    account.ID,
			BalanceCents: account.Balance.Cents,
		})
	}

	if tx.Type == core.TxExpense && account.MonthlyBudgetCents != nil && *account.MonthlyBudgetCents > 0 {
		s.emitBudgetAlerts(ctx, ownerID, account, tx, now)
	}
}

func (s *TransactionService) emitBudgetAlerts(ctx context.Context, ownerID string, account core.Account, tx core.Transaction, now time.Time) {
	year, month, _ := tx.OccurredAt.UTC().Date()
	total, err := s.store.MonthExpenseTotal(ctx, ownerID, account.ID, year, month)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read month expense total",
			"account_id", account.ID,
			"error", err)
		return
	}

	budget := *account.MonthlyBudgetCents
	switch {
	case total >= budget:
		s.publish(ctx, &event.Event{
			Kind:         event.KindBudgetExceeded,
			OwnerID:      ownerID,
			Title:        "Monthly budget exceeded",
			Body:         fmt.Sprintf("%s spent %s of a %s budget", account.Name, core.Money{Cents: total}, core.Money{Cents: budget}),
			OccurredAt:   now,
			AccountID:    account.ID,
			AmountCents:  total,
			BalanceCents: account.Balance.Cents,
		})
	case total*100 >= budget*80:
		s.publish(ctx, &event.Event{
			Kind:        event.KindBudgetWarning,
			OwnerID:     ownerID,
			Title:       "Approaching monthly budget",
			Body:        fmt.Sprintf("%s spent %s of a %s budget", account.Name, core.Money{Cents: total}, core.Money{Cents: budget}),
			OccurredAt:  now,
			AccountID:   account.ID,
			AmountCents: total,
		})
	}
}
