package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stash/internal/core"
	"stash/internal/event"
	"stash/internal/storage"
)

type TransactionService struct {
	store  Store
	events event.Publisher
	alerts AlertConfig
}

// NewTransactionService creates the engine's write path. events may be
// nil when no notification transport is configured.
func NewTransactionService(store Store, events event.Publisher, alerts AlertConfig) *TransactionService {
	return &TransactionService{
		store:  store,
		events: events,
		alerts: alerts,
	}
}

// Create validates the request, resolves its references, and commits
// the transaction row together with its balance effects in one batch.
// Plain expenses may overdraw the account; the engine records the
// overdraft and reports it through events instead of blocking it.
func (s *TransactionService) Create(ctx context.Context, ownerID string, req core.CreateTransactionRequest) (core.Transaction, error) {
	if err := req.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	if err := s.checkReferences(ctx, ownerID, req); err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{
		OwnerID:       ownerID,
		Type:          req.Type,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
		Category:      req.Category,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		GoalID:        req.GoalID,
		OccurredAt:    req.OccurredAt,
		IsRecurring:   req.IsRecurring,
	}

	writes := append([]storage.Write{storage.InsertTransaction(&tx)}, balanceEffects(tx, false)...)
	if err := s.store.CommitBatch(ctx, ownerID, writes); err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction committed",
		"id", tx.ID,
		"owner_id", ownerID,
		"type", tx.Type,
		"amount_cents", tx.Amount.Cents)

	s.publish(ctx, &event.Event{
		Kind:          event.KindTransactionCreated,
		OwnerID:       ownerID,
		Title:         "Transaction recorded",
		Body:          tx.Description,
		OccurredAt:    time.Now().UTC(),
		TransactionID: tx.ID,
		AmountCents:   tx.Amount.Cents,
	})
	s.emitAlerts(ctx, ownerID, tx)

	return tx, nil
}

// Delete soft-deletes a transaction and reverses its balance effects in
// the same batch. A deposit reversal is guarded: if the goal has since
// been drained below the deposited amount the whole delete is rejected
// with ErrInsufficientFunds.
func (s *TransactionService) Delete(ctx context.Context, ownerID string, id int64) error {
	tx, err := s.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if tx.IsDeleted {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}

	writes := append([]storage.Write{storage.MarkTransactionDeleted(id)}, balanceEffects(tx, true)...)
	if err := s.store.CommitBatch(ctx, ownerID, writes); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"id", id,
		"owner_id", ownerID,
		"type", tx.Type)
	return nil
}

// Update changes the non-monetary fields of a live transaction. Amount,
// type, and account or goal references are immutable once committed;
// callers wanting those changed must delete and recreate.
func (s *TransactionService) Update(ctx context.Context, ownerID string, id int64, req core.UpdateTransactionRequest) (core.Transaction, error) {
	if req.TouchesMoney() {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrImmutableField)
	}
	if req.Description == nil && req.Category == nil {
		return core.Transaction{}, fmt.Errorf("%w: empty patch", core.ErrValidation)
	}
	if req.Description != nil && len(*req.Description) == 0 {
		return core.Transaction{}, fmt.Errorf("%w: empty description", core.ErrValidation)
	}

	patch := core.TransactionPatch{Description: req.Description, Category: req.Category}
	writes := []storage.Write{storage.SetTransactionFields(id, patch)}
	if err := s.store.CommitBatch(ctx, ownerID, writes); err != nil {
		return core.Transaction{}, err
	}
	return s.store.GetTransaction(ctx, ownerID, id)
}

func (s *TransactionService) Get(ctx context.Context, ownerID string, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, ownerID, id)
}

func (s *TransactionService) List(ctx context.Context, ownerID string, limit int) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, ownerID, limit)
}

// checkReferences verifies that every referenced account exists, is
// active, belongs to the owner, and matches the request currency. Goal
// existence is checked here; goal balance rules are enforced by the
// guarded writes themselves.
func (s *TransactionService) checkReferences(ctx context.Context, ownerID string, req core.CreateTransactionRequest) error {
	for _, accountID := range []int64{req.FromAccountID, req.ToAccountID} {
		if accountID == 0 {
			continue
		}
		account, err := s.store.GetAccount(ctx, ownerID, accountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return fmt.Errorf("account %d: %w", accountID, core.ErrNotFound)
		}
		if account.Currency != req.Currency {
			return fmt.Errorf("%w: account %d holds %s, transaction is %s",
				core.ErrValidation, accountID, account.Currency, req.Currency)
		}
	}
	if req.GoalID != 0 {
		goal, err := s.store.GetGoal(ctx, ownerID, req.GoalID)
		if err != nil {
			return err
		}
		if !goal.IsActive {
			return fmt.Errorf("goal %d: %w", req.GoalID, core.ErrNotFound)
		}
	}
	return nil
}

// publish sends one event, best-effort. Failures are logged and never
// propagate to the caller: the commit already happened.
func (s *TransactionService) publish(ctx context.Context, e *event.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"kind", e.Kind,
			"owner_id", e.OwnerID,
			"error", err)
	}
}
