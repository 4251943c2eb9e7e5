// Package ledger implements the transaction engine on top of the
// storage batch API. Services validate input, compute balance effects,
// commit them atomically, and emit best-effort events afterwards.
package ledger

import (
	"context"
	"time"

	"stash/internal/core"
	"stash/internal/storage"
)

// Store is the persistence surface the services run on. Implemented by
// *storage.Repository.
type Store interface {
	CommitBatch(ctx context.Context, ownerID string, writes []storage.Write) error

	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
	GetAccount(ctx context.Context, ownerID string, id int64) (core.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error)
	DeactivateAccount(ctx context.Context, ownerID string, id int64) error
	HasEnabledAutoTransferFrom(ctx context.Context, ownerID string, accountID int64) (bool, error)
	MonthExpenseTotal(ctx context.Context, ownerID string, accountID int64, year int, month time.Month) (int64, error)

	GetTransaction(ctx context.Context, ownerID string, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]core.Transaction, error)

	CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
	GetGoal(ctx context.Context, ownerID string, id int64) (core.Goal, error)
	ListGoals(ctx context.Context, ownerID string) ([]core.Goal, error)
	SetAutoTransfer(ctx context.Context, ownerID string, goalID int64, cfg core.AutoTransferConfig) error
	CompleteGoal(ctx context.Context, ownerID string, goalID int64) (bool, error)
	DeactivateGoal(ctx context.Context, ownerID string, id int64) error
	ListDueAutoPayGoals(ctx context.Context, now time.Time) ([]core.Goal, error)
	ClaimAutoPayment(ctx context.Context, ownerID string, goalID int64, scheduled, next, now time.Time) (bool, error)
}
