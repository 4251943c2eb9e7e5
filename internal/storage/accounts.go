package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stash/internal/core"
)

func (r *Repository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts
		 (owner_id, name, type, balance_cents, currency, monthly_budget_cents, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		a.OwnerID, a.Name, a.Type, a.Balance.Cents, a.Currency, a.MonthlyBudgetCents, now, now)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Account{}, fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	a.IsActive = true
	a.CreatedAt = now
	a.UpdatedAt = now
	return a, nil
}

func (r *Repository) GetAccount(ctx context.Context, ownerID string, id int64) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, type, balance_cents, currency, monthly_budget_cents,
		        is_active, created_at, updated_at
		 FROM accounts WHERE id = ? AND owner_id = ?`, id, ownerID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return core.Account{}, fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, type, balance_cents, currency, monthly_budget_cents,
		        is_active, created_at, updated_at
		 FROM accounts WHERE owner_id = ? AND is_active = 1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *Repository) DeactivateAccount(ctx context.Context, ownerID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET is_active = 0, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND is_active = 1`,
		time.Now().UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// HasEnabledAutoTransferFrom reports whether any active goal funds
// itself from the given account.
func (r *Repository) HasEnabledAutoTransferFrom(ctx context.Context, ownerID string, accountID int64) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM goals
		 WHERE owner_id = ? AND auto_from_account_id = ? AND auto_enabled = 1 AND is_active = 1
		 LIMIT 1`, ownerID, accountID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check auto transfers: %w", err)
	}
	return true, nil
}

// MonthExpenseTotal sums the live expense transactions debiting an
// account within a calendar month.
func (r *Repository) MonthExpenseTotal(ctx context.Context, ownerID string, accountID int64, year int, month time.Month) (int64, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(amount_cents) FROM transactions
		 WHERE owner_id = ? AND from_account_id = ? AND type = ?
		   AND is_deleted = 0 AND occurred_at >= ? AND occurred_at < ?`,
		ownerID, accountID, core.TxExpense, start, end).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("month expense total: %w", err)
	}
	return total.Int64, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a      core.Account
		budget sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.Balance.Cents,
		&a.Currency, &budget, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return core.Account{}, err
	}
	if budget.Valid {
		a.MonthlyBudgetCents = &budget.Int64
	}
	return a, nil
}
