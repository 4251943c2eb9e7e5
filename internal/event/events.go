// Package event defines the side-effect events emitted after ledger
// commits. Emission is best-effort: a failed publish is logged by the
// caller and never fails the commit that produced it.
package event

import (
	"context"
	"encoding/json"
	"time"
)

const (
	KindTransactionCreated = "transaction_created"
	KindLargeTransaction   = "large_transaction"
	KindBalanceLow         = "balance_low"
	KindBalanceCritical    = "balance_critical"
	KindBalanceNegative    = "balance_negative"
	KindBudgetWarning      = "budget_warning"
	KindBudgetExceeded     = "budget_exceeded"
	KindGoalProgress       = "goal_progress"
	KindGoalMilestone      = "goal_milestone"
	KindGoalCompleted      = "goal_completed"
	KindAutoPayFailed      = "autopay_failed"
)

// Event is one user-facing side effect of a committed batch.
type Event struct {
	Kind       string    `json:"kind"`
	OwnerID    string    `json:"owner_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurred_at"`

	TransactionID int64 `json:"transaction_id,omitempty"`
	AccountID     int64 `json:"account_id,omitempty"`
	GoalID        int64 `json:"goal_id,omitempty"`
	AmountCents   int64 `json:"amount_cents,omitempty"`
	BalanceCents  int64 `json:"balance_cents,omitempty"`
	Progress      int   `json:"progress,omitempty"`
	Milestone     int   `json:"milestone,omitempty"`
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Publisher delivers events to the notification pipeline. Callers hold
// a nil Publisher when no transport is configured and must skip
// publishing in that case.
type Publisher interface {
	PublishEvent(ctx context.Context, e *Event) error
}
