package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stash/internal/core"
)

func (r *Repository) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO goals
		 (owner_id, name, target_cents, current_cents, target_date, is_completed, is_active,
		  auto_enabled, auto_amount_cents, auto_frequency, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, 0, 1, 0, 0, '', ?, ?)`,
		g.OwnerID, g.Name, g.Target.Cents, nullTime(g.TargetDate), now, now)
	if err != nil {
		return core.Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Goal{}, fmt.Errorf("last insert id: %w", err)
	}
	g.ID = id
	g.Current = core.Money{}
	g.IsActive = true
	g.CreatedAt = now
	g.UpdatedAt = now
	return g, nil
}

func (r *Repository) GetGoal(ctx context.Context, ownerID string, id int64) (core.Goal, error) {
	row := r.db.QueryRowContext(ctx, goalColumns+
		` FROM goals WHERE id = ? AND owner_id = ?`, id, ownerID)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return core.Goal{}, fmt.Errorf("goal %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (r *Repository) ListGoals(ctx context.Context, ownerID string) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, goalColumns+
		` FROM goals WHERE owner_id = ? AND is_active = 1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// SetAutoTransfer writes the funding schedule only; saved amounts are
// untouched.
func (r *Repository) SetAutoTransfer(ctx context.Context, ownerID string, goalID int64, cfg core.AutoTransferConfig) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE goals SET auto_enabled = ?, auto_from_account_id = ?, auto_amount_cents = ?,
		        auto_frequency = ?, next_payment_at = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND is_active = 1`,
		cfg.Enabled, nullID(cfg.FromAccountID), cfg.Amount.Cents,
		cfg.Frequency, nullTime(cfg.NextPaymentAt), time.Now().UTC(),
		goalID, ownerID)
	if err != nil {
		return fmt.Errorf("set auto transfer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("goal %d: %w", goalID, core.ErrNotFound)
	}
	return nil
}

// ListDueAutoPayGoals returns active goals whose next scheduled funding
// is at or before now.
func (r *Repository) ListDueAutoPayGoals(ctx context.Context, now time.Time) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, goalColumns+
		` FROM goals
		 WHERE auto_enabled = 1 AND is_active = 1 AND next_payment_at <= ?
		 ORDER BY next_payment_at`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list due goals: %w", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// ClaimAutoPayment advances a goal's schedule from its previous
// scheduled time to next. The conditional update acts as a lease: a
// concurrent processor that lost the race gets false and must skip the
// period.
func (r *Repository) ClaimAutoPayment(ctx context.Context, ownerID string, goalID int64, scheduled, next, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE goals SET next_payment_at = ?, auto_last_run_at = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND auto_enabled = 1 AND is_active = 1
		   AND next_payment_at = ?`,
		next.UTC(), now.UTC(), now.UTC(), goalID, ownerID, scheduled.UTC())
	if err != nil {
		return false, fmt.Errorf("claim auto payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim auto payment: %w", err)
	}
	return n > 0, nil
}

// CompleteGoal flips is_completed exactly once. The caller only emits a
// completion event when the returned bool is true.
func (r *Repository) CompleteGoal(ctx context.Context, ownerID string, goalID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE goals SET is_completed = 1, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND is_completed = 0`,
		time.Now().UTC(), goalID, ownerID)
	if err != nil {
		return false, fmt.Errorf("complete goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete goal: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) DeactivateGoal(ctx context.Context, ownerID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE goals SET is_active = 0, auto_enabled = 0, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND is_active = 1`,
		time.Now().UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("deactivate goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("goal %d: %w", id, core.ErrNotFound)
	}
	return nil
}

const goalColumns = `SELECT id, owner_id, name, target_cents, current_cents, target_date,
	is_completed, is_active, auto_enabled, auto_from_account_id, auto_amount_cents,
	auto_frequency, next_payment_at, auto_last_run_at, created_at, updated_at`

func scanGoal(row rowScanner) (core.Goal, error) {
	var (
		g                            core.Goal
		targetDate, nextPay, lastRun sql.NullTime
		fromAccount                  sql.NullInt64
	)
	err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Target.Cents, &g.Current.Cents,
		&targetDate, &g.IsCompleted, &g.IsActive,
		&g.AutoPayment.Enabled, &fromAccount, &g.AutoPayment.Amount.Cents,
		&g.AutoPayment.Frequency, &nextPay, &lastRun, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return core.Goal{}, err
	}
	g.TargetDate = targetDate.Time
	g.AutoPayment.FromAccountID = fromAccount.Int64
	g.AutoPayment.NextPaymentAt = nextPay.Time
	g.AutoPayment.LastRunAt = lastRun.Time
	return g, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
