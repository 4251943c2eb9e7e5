package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"stash/internal/core"
)

type writeKind int

const (
	kindInsertTransaction writeKind = iota
	kindAddToBalance
	kindAddToGoal
	kindMarkTransactionDeleted
	kindSetTransactionFields
)

// Write is one mutation inside an atomic batch. Build writes with the
// constructor functions below and hand them to CommitBatch.
type Write struct {
	kind         writeKind
	tx           *core.Transaction
	accountID    int64
	goalID       int64
	deltaCents   int64
	requireFunds bool
	txID         int64
	patch        core.TransactionPatch
}

// InsertTransaction appends a transaction row. On commit the assigned
// ID is written back through the pointer.
func InsertTransaction(tx *core.Transaction) Write {
	return Write{kind: kindInsertTransaction, tx: tx}
}

// AddToBalance increments an active account's balance by deltaCents
// (negative to debit). Balances may go negative.
func AddToBalance(accountID, deltaCents int64) Write {
	return Write{kind: kindAddToBalance, accountID: accountID, deltaCents: deltaCents}
}

// AddToGoal increments an active goal's saved amount. With requireFunds
// the update only applies when the result stays non-negative; a guarded
// decrement that matches no row fails the whole batch with
// ErrInsufficientFunds.
func AddToGoal(goalID, deltaCents int64, requireFunds bool) Write {
	return Write{kind: kindAddToGoal, goalID: goalID, deltaCents: deltaCents, requireFunds: requireFunds}
}

// MarkTransactionDeleted soft-deletes a live transaction row.
func MarkTransactionDeleted(txID int64) Write {
	return Write{kind: kindMarkTransactionDeleted, txID: txID}
}

// SetTransactionFields updates the non-monetary fields of a transaction.
func SetTransactionFields(txID int64, patch core.TransactionPatch) Write {
	return Write{kind: kindSetTransactionFields, txID: txID, patch: patch}
}

// CommitBatch applies all writes in one SQL transaction. Either every
// write lands or none does. Domain rejections (missing rows, guarded
// decrements) surface as core sentinel errors; driver failures wrap
// core.ErrCommitFailed. After a successful commit subscribers of the
// owner receive a fresh snapshot.
func (r *Repository) CommitBatch(ctx context.Context, ownerID string, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrCommitFailed, err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC()
	for _, w := range writes {
		if err := r.applyWrite(ctx, sqlTx, ownerID, w, now); err != nil {
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrCommitFailed, err)
	}

	r.notifySubscribers(ctx, ownerID)
	return nil
}

func (r *Repository) applyWrite(ctx context.Context, sqlTx *sql.Tx, ownerID string, w Write, now time.Time) error {
	switch w.kind {
	case kindInsertTransaction:
		return insertTransaction(ctx, sqlTx, ownerID, w.tx, now)

	case kindAddToBalance:
		res, err := sqlTx.ExecContext(ctx,
			`UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ?
			 WHERE id = ? AND owner_id = ? AND is_active = 1`,
			w.deltaCents, now, w.accountID, ownerID)
		if err != nil {
			return fmt.Errorf("%w: update balance: %v", core.ErrCommitFailed, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("account %d: %w", w.accountID, core.ErrNotFound)
		}
		return nil

	case kindAddToGoal:
		query := `UPDATE goals SET current_cents = current_cents + ?, updated_at = ?
			 WHERE id = ? AND owner_id = ? AND is_active = 1`
		args := []any{w.deltaCents, now, w.goalID, ownerID}
		if w.requireFunds {
			query += ` AND current_cents + ? >= 0`
			args = append(args, w.deltaCents)
		}
		res, err := sqlTx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%w: update goal: %v", core.ErrCommitFailed, err)
		}
		n, _ := res.RowsAffected()
		if n > 0 {
			return nil
		}
		if !w.requireFunds {
			return fmt.Errorf("goal %d: %w", w.goalID, core.ErrNotFound)
		}
		// Guarded update matched nothing: missing goal or not enough saved
		var exists int
		err = sqlTx.QueryRowContext(ctx,
			`SELECT 1 FROM goals WHERE id = ? AND owner_id = ? AND is_active = 1`,
			w.goalID, ownerID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("goal %d: %w", w.goalID, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("%w: check goal: %v", core.ErrCommitFailed, err)
		}
		return fmt.Errorf("goal %d: %w", w.goalID, core.ErrInsufficientFunds)

	case kindMarkTransactionDeleted:
		res, err := sqlTx.ExecContext(ctx,
			`UPDATE transactions SET is_deleted = 1, updated_at = ?
			 WHERE id = ? AND owner_id = ? AND is_deleted = 0`,
			now, w.txID, ownerID)
		if err != nil {
			return fmt.Errorf("%w: mark deleted: %v", core.ErrCommitFailed, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("transaction %d: %w", w.txID, core.ErrNotFound)
		}
		return nil

	case kindSetTransactionFields:
		query := `UPDATE transactions SET updated_at = ?`
		args := []any{now}
		if w.patch.Description != nil {
			query += `, description = ?`
			args = append(args, *w.patch.Description)
		}
		if w.patch.Category != nil {
			query += `, category = ?`
			args = append(args, *w.patch.Category)
		}
		query += ` WHERE id = ? AND owner_id = ? AND is_deleted = 0`
		args = append(args, w.txID, ownerID)
		res, err := sqlTx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%w: update fields: %v", core.ErrCommitFailed, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("transaction %d: %w", w.txID, core.ErrNotFound)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown write kind %d", core.ErrCommitFailed, w.kind)
}

func insertTransaction(ctx context.Context, sqlTx *sql.Tx, ownerID string, t *core.Transaction, now time.Time) error {
	res, err := sqlTx.ExecContext(ctx,
		`INSERT INTO transactions
		 (owner_id, type, amount_cents, currency, description, category,
		  from_account_id, to_account_id, goal_id, occurred_at,
		  is_recurring, is_deleted, sync_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		ownerID, t.Type, t.Amount.Cents, t.Currency, t.Description, t.Category,
		nullID(t.FromAccountID), nullID(t.ToAccountID), nullID(t.GoalID),
		t.OccurredAt.UTC(), t.IsRecurring, core.SyncPending, now, now)
	if err != nil {
		return fmt.Errorf("%w: insert transaction: %v", core.ErrCommitFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: last insert id: %v", core.ErrCommitFailed, err)
	}
	t.ID = id
	t.OwnerID = ownerID
	t.SyncStatus = core.SyncPending
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (r *Repository) notifySubscribers(ctx context.Context, ownerID string) {
	r.mu.Lock()
	channels := append([]chan core.OwnerSnapshot(nil), r.subs[ownerID]...)
	r.mu.Unlock()
	if len(channels) == 0 {
		return
	}

	snap, err := r.OwnerSnapshot(ctx, ownerID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to build snapshot for subscribers",
			"owner_id", ownerID,
			"error", err)
		return
	}
	for _, ch := range channels {
		select {
		case ch <- snap:
		default:
			// Slow subscriber keeps only the latest snapshot
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
