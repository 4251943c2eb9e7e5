package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"stash/internal/core"
)

func (r *Repository) GetTransaction(ctx context.Context, ownerID string, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, transactionColumns+
		` FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns the owner's live transactions, most recent
// first.
func (r *Repository) ListTransactions(ctx context.Context, ownerID string, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, transactionColumns+
		` FROM transactions
		 WHERE owner_id = ? AND is_deleted = 0
		 ORDER BY occurred_at DESC, id DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListPendingExport returns committed transactions not yet appended to
// the statement sheet, oldest first. Soft-deleted rows are skipped and
// marked synced so they do not clog the queue.
func (r *Repository) ListPendingExport(ctx context.Context, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, transactionColumns+
		` FROM transactions
		 WHERE sync_status = ? AND is_deleted = 0
		 ORDER BY id LIMIT ?`, core.SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending export: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *Repository) MarkExported(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, core.SyncDone); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction marked as exported", "id", id)
	return nil
}

func (r *Repository) MarkExportError(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, core.SyncError); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Transaction marked with export error", "id", id)
	return nil
}

func (r *Repository) setSyncStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set sync status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

const transactionColumns = `SELECT id, owner_id, type, amount_cents, currency, description, category,
	from_account_id, to_account_id, goal_id, occurred_at,
	is_recurring, is_deleted, sync_status, created_at, updated_at`

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                core.Transaction
		from, to, goalID sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Type, &t.Amount.Cents, &t.Currency,
		&t.Description, &t.Category, &from, &to, &goalID, &t.OccurredAt,
		&t.IsRecurring, &t.IsDeleted, &t.SyncStatus, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.FromAccountID = from.Int64
	t.ToAccountID = to.Int64
	t.GoalID = goalID.Int64
	return t, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
