package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stash/internal/core"
	"stash/internal/event"
)

// maxCatchUpPayments caps how many missed periods one invocation funds
// for a single goal. A schedule that has been offline for longer keeps
// its backlog and catches up over the following runs.
const maxCatchUpPayments = 12

// AutoPayProcessor funds goals on their schedule. It is safe to run
// several processors concurrently: each missed period is claimed with a
// conditional update before any money moves, so a period is funded at
// most once no matter how many processors see it due.
type AutoPayProcessor struct {
	store  Store
	goals  *GoalService
	events event.Publisher
}

func NewAutoPayProcessor(store Store, goals *GoalService, events event.Publisher) *AutoPayProcessor {
	return &AutoPayProcessor{
		store:  store,
		goals:  goals,
		events: events,
	}
}

// ProcessDue funds every goal whose schedule is due at now and returns
// how many payments were made. Failures on one goal are logged and do
// not stop processing of the others.
func (p *AutoPayProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	due, err := p.store.ListDueAutoPayGoals(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due goals: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing due auto transfers", "due_goals", len(due))

	paid := 0
	for _, goal := range due {
		n, err := p.processGoal(ctx, goal, now)
		paid += n
		if err != nil {
			slog.ErrorContext(ctx, "Auto transfer processing failed for goal",
				"goal_id", goal.ID,
				"owner_id", goal.OwnerID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Auto transfer run completed", "payments", paid)
	return paid, nil
}

// processGoal walks the goal's missed periods. Each period is claimed
// by advancing next_payment_at from its previous scheduled value, so
// cadence stays fixed relative to the schedule rather than drifting to
// the processing time.
func (p *AutoPayProcessor) processGoal(ctx context.Context, goal core.Goal, now time.Time) (int, error) {
	cfg := goal.AutoPayment
	if !cfg.Frequency.Valid() {
		return 0, fmt.Errorf("goal %d: invalid frequency %q", goal.ID, cfg.Frequency)
	}

	paid := 0
	scheduled := cfg.NextPaymentAt
	for i := 0; i < maxCatchUpPayments && !scheduled.After(now); i++ {
		next := cfg.Frequency.Next(scheduled)
		claimed, err := p.store.ClaimAutoPayment(ctx, goal.OwnerID, goal.ID, scheduled, next, now)
		if err != nil {
			return paid, fmt.Errorf("claim period %s: %w", scheduled.Format(time.RFC3339), err)
		}
		if !claimed {
			// Another processor owns this period
			slog.InfoContext(ctx, "Auto transfer period already claimed",
				"goal_id", goal.ID,
				"scheduled", scheduled)
			return paid, nil
		}

		_, err = p.goals.Pay(ctx, goal.OwnerID, core.GoalPaymentRequest{
			GoalID:      goal.ID,
			AccountID:   cfg.FromAccountID,
			Amount:      cfg.Amount,
			Description: "Automatic payment to " + goal.Name,
		})
		if err != nil {
			p.reportFailure(ctx, goal, cfg, scheduled, err)
		} else {
			paid++
		}
		scheduled = next
	}
	return paid, nil
}

// reportFailure logs a skipped payment and emits an event so the owner
// learns about it. The claim stays consumed: the period is not retried.
func (p *AutoPayProcessor) reportFailure(ctx context.Context, goal core.Goal, cfg core.AutoTransferConfig, scheduled time.Time, cause error) {
	slog.ErrorContext(ctx, "Auto transfer payment failed",
		"goal_id", goal.ID,
		"owner_id", goal.OwnerID,
		"from_account_id", cfg.FromAccountID,
		"amount_cents", cfg.Amount.Cents,
		"scheduled", scheduled,
		"error", cause)

	if p.events == nil {
		return
	}
	e := &event.Event{
		Kind:        event.KindAutoPayFailed,
		OwnerID:     goal.OwnerID,
		Title:       "Automatic payment failed",
		Body:        fmt.Sprintf("Could not fund %s: %v", goal.Name, cause),
		OccurredAt:  time.Now().UTC(),
		GoalID:      goal.ID,
		AccountID:   cfg.FromAccountID,
		AmountCents: cfg.Amount.Cents,
	}
	if err := p.events.PublishEvent(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"kind", e.Kind,
			"owner_id", e.OwnerID,
			"error", err)
	}
}
