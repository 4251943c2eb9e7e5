package core

import (
	"errors"
	"strings"
	"time"
)

const (
	AccountMain     AccountType = "main"
	AccountSavings  AccountType = "savings"
	AccountExpenses AccountType = "expenses"
	AccountCustom   AccountType = "custom"
)

const (
	TxExpense     TransactionType = "expense"
	TxIncome      TransactionType = "income"
	TxTransfer    TransactionType = "transfer"
	TxGoalPayment TransactionType = "goal_payment"
)

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Sync status of a transaction row in the statement-export queue.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

type (
	AccountType     string
	TransactionType string
	Frequency       string

	// Account is a named balance bucket owned by one user. Balance is the
	// stored sum of all committed transaction effects touching it; readers
	// must treat it as authoritative rather than recomputing from history.
	Account struct {
		ID                 int64
		OwnerID            string
		Name               string
		Type               AccountType
		Balance            Money
		Currency           string
		MonthlyBudgetCents *int64
		IsActive           bool
		CreatedAt          time.Time
		UpdatedAt          time.Time
	}

	// Transaction records one money movement. Immutable once committed,
	// except for the soft-delete flag (which reverses its balance effect)
	// and non-monetary fields.
	Transaction struct {
		ID            int64
		OwnerID       string
		Type          TransactionType
		Amount        Money // positive magnitude; direction comes from Type
		Currency      string
		Description   string
		Category      string
		FromAccountID int64 // 0 when unset
		ToAccountID   int64
		GoalID        int64
		OccurredAt    time.Time
		IsRecurring   bool
		IsDeleted     bool
		SyncStatus    string
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// Goal is a savings target with its own running balance, funded by
	// goal_payment transactions.
	Goal struct {
		ID          int64
		OwnerID     string
		Name        string
		Target      Money
		Current     Money
		TargetDate  time.Time
		IsCompleted bool
		IsActive    bool
		AutoPayment AutoTransferConfig
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// AutoTransferConfig drives the recurring funding schedule of a goal.
	AutoTransferConfig struct {
		Enabled       bool
		FromAccountID int64
		Amount        Money
		Frequency     Frequency
		NextPaymentAt time.Time
		LastRunAt     time.Time
	}

	// Notification is a recorded user-facing alert, written by the worker
	// from consumed ledger events.
	Notification struct {
		ID        int64
		OwnerID   string
		Kind      string
		Title     string
		Body      string
		Payload   string // JSON of the originating event
		IsRead    bool
		CreatedAt time.Time
	}
)

var (
	ErrValidation        = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrImmutableField    = errors.New("field cannot be changed after commit")
	ErrCommitFailed      = errors.New("store commit failed")
)

// CreateTransactionRequest is the input accepted from calling UI code.
type CreateTransactionRequest struct {
	Type          TransactionType
	Amount        Money
	Currency      string
	Description   string
	Category      string
	FromAccountID int64
	ToAccountID   int64
	GoalID        int64
	OccurredAt    time.Time
	IsRecurring   bool
}

// TransactionPatch carries the only fields that may change after commit.
// Monetary fields (amount, type, account/goal references) require
// delete + recreate so balances stay in sync with history.
type TransactionPatch struct {
	Description *string
	Category    *string
}

// UpdateTransactionRequest is the raw patch received from calling
// code. Monetary fields are present so the engine can reject them
// explicitly instead of silently ignoring them.
type UpdateTransactionRequest struct {
	Description   *string
	Category      *string
	AmountCents   *int64
	Type          *TransactionType
	FromAccountID *int64
	ToAccountID   *int64
	GoalID        *int64
}

// TouchesMoney reports whether the patch tries to change a field that
// is immutable after commit.
func (r UpdateTransactionRequest) TouchesMoney() bool {
	return r.AmountCents != nil || r.Type != nil ||
		r.FromAccountID != nil || r.ToAccountID != nil || r.GoalID != nil
}

// GoalPaymentRequest funds or drains a goal through one account.
type GoalPaymentRequest struct {
	GoalID      int64
	AccountID   int64
	Amount      Money
	Description string
}

func (t TransactionType) Valid() bool {
	switch t {
	case TxExpense, TxIncome, TxTransfer, TxGoalPayment:
		return true
	}
	return false
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Next returns the scheduled time one period after prev. Monthly schedules
// advance by calendar month, the rest by fixed day counts.
func (f Frequency) Next(prev time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return prev.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return prev.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return prev.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return prev.AddDate(0, 1, 0)
	}
	return prev
}

// Validate checks the request before anything touches the store. The
// required account/goal references depend on the transaction type:
// expense debits from, income credits to, transfer moves between two
// distinct accounts, and a goal payment pairs a goal with exactly one
// account (from = deposit, to = withdrawal).
func (r CreateTransactionRequest) Validate() error {
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if !r.Type.Valid() {
		return errors.New("unknown transaction type: " + string(r.Type))
	}
	if len(strings.TrimSpace(r.Description)) == 0 {
		return errors.New("empty description")
	}
	if len(r.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be a 3-letter code")
	}
	if r.OccurredAt.IsZero() {
		return errors.New("date cannot be zero")
	}

	switch r.Type {
	case TxExpense:
		if r.FromAccountID == 0 {
			return errors.New("expense requires a source account")
		}
		if r.ToAccountID != 0 || r.GoalID != 0 {
			return errors.New("expense accepts only a source account")
		}
	case TxIncome:
		if r.ToAccountID == 0 {
			return errors.New("income requires a destination account")
		}
		if r.FromAccountID != 0 || r.GoalID != 0 {
			return errors.New("income accepts only a destination account")
		}
	case TxTransfer:
		if r.FromAccountID == 0 || r.ToAccountID == 0 {
			return errors.New("transfer requires source and destination accounts")
		}
		if r.FromAccountID == r.ToAccountID {
			return errors.New("transfer source and destination must differ")
		}
		if r.GoalID != 0 {
			return errors.New("transfer cannot reference a goal")
		}
	case TxGoalPayment:
		if r.GoalID == 0 {
			return errors.New("goal payment requires a goal")
		}
		if (r.FromAccountID == 0) == (r.ToAccountID == 0) {
			return errors.New("goal payment requires exactly one of source or destination account")
		}
	}
	return nil
}

// IsGoalDeposit reports whether a goal_payment moves money into the goal.
func (t Transaction) IsGoalDeposit() bool {
	return t.Type == TxGoalPayment && t.FromAccountID != 0
}

// IsGoalWithdrawal reports whether a goal_payment moves money out of the goal.
func (t Transaction) IsGoalWithdrawal() bool {
	return t.Type == TxGoalPayment && t.ToAccountID != 0
}

// Progress returns goal completion as a whole percentage. Uncapped goals
// can report more than 100.
func (g Goal) Progress() int {
	if g.Target.Cents <= 0 {
		return 0
	}
	return int(g.Current.Cents * 100 / g.Target.Cents)
}
