package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stash/internal/core"
	"stash/internal/event"
)

var milestones = []int{25, 50, 75}

type GoalService struct {
	store        Store
	transactions *TransactionService
	events       event.Publisher
}

func NewGoalService(store Store, transactions *TransactionService, events event.Publisher) *GoalService {
	return &GoalService{
		store:        store,
		transactions: transactions,
		events:       events,
	}
}

type CreateGoalRequest struct {
	Name        string
	TargetCents int64
	TargetDate  time.Time
}

func (s *GoalService) Create(ctx context.Context, ownerID string, req CreateGoalRequest) (core.Goal, error) {
	if strings.TrimSpace(req.Name) == "" {
		return core.Goal{}, fmt.Errorf("%w: empty goal name", core.ErrValidation)
	}
	if req.TargetCents <= 0 {
		return core.Goal{}, fmt.Errorf("%w: target must be positive", core.ErrValidation)
	}

	goal, err := s.store.CreateGoal(ctx, core.Goal{
		OwnerID:    ownerID,
		Name:       strings.TrimSpace(req.Name),
		Target:     core.Money{Cents: req.TargetCents},
		TargetDate: req.TargetDate,
	})
	if err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal created",
		"id", goal.ID,
		"owner_id", ownerID,
		"name", goal.Name,
		"target_cents", req.TargetCents)
	return goal, nil
}

func (s *GoalService) Get(ctx context.Context, ownerID string, id int64) (core.Goal, error) {
	return s.store.GetGoal(ctx, ownerID, id)
}

func (s *GoalService) List(ctx context.Context, ownerID string) ([]core.Goal, error) {
	return s.store.ListGoals(ctx, ownerID)
}

func (s *GoalService) Deactivate(ctx context.Context, ownerID string, id int64) error {
	return s.store.DeactivateGoal(ctx, ownerID, id)
}

// Pay moves money from an account into a goal. Deposits are recorded in
// full even past the target; progress can exceed 100%. After the commit
// the service emits progress and milestone events and claims the
// completion transition when the target is first reached.
func (s *GoalService) Pay(ctx context.Context, ownerID string, req core.GoalPaymentRequest) (core.Transaction, error) {
	before, account, err := s.loadPaymentRefs(ctx, ownerID, req)
	if err != nil {
		return core.Transaction{}, err
	}

	tx, err := s.transactions.Create(ctx, ownerID, core.CreateTransactionRequest{
		Type:          core.TxGoalPayment,
		Amount:        req.Amount,
		Currency:      account.Currency,
		Description:   paymentDescription(req.Description, "Payment to "+before.Name),
		FromAccountID: req.AccountID,
		GoalID:        req.GoalID,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.emitProgress(ctx, ownerID, before)
	return tx, nil
}

// Withdraw moves saved money back to an account. The store's guarded
// decrement enforces the funds check atomically; the early read here
// only produces a friendlier error for the common case.
func (s *GoalService) Withdraw(ctx context.Context, ownerID string, req core.GoalPaymentRequest) (core.Transaction, error) {
	before, account, err := s.loadPaymentRefs(ctx, ownerID, req)
	if err != nil {
		return core.Transaction{}, err
	}
	if before.Current.LessThan(req.Amount) {
		return core.Transaction{}, fmt.Errorf("goal %d has %s, requested %s: %w",
			req.GoalID, before.Current, req.Amount, core.ErrInsufficientFunds)
	}

	return s.transactions.Create(ctx, ownerID, core.CreateTransactionRequest{
		Type:        core.TxGoalPayment,
		Amount:      req.Amount,
		Currency:    account.Currency,
		Description: paymentDescription(req.Description, "Withdrawal from "+before.Name),
		ToAccountID: req.AccountID,
		GoalID:      req.GoalID,
		OccurredAt:  time.Now().UTC(),
	})
}

// SetupAutoTransfer writes a goal's funding schedule. Enabling computes
// the first run one full period from now; disabling clears the
// schedule. Saved amounts are never touched here.
func (s *GoalService) SetupAutoTransfer(ctx context.Context, ownerID string, goalID int64, cfg core.AutoTransferConfig) error {
	goal, err := s.store.GetGoal(ctx, ownerID, goalID)
	if err != nil {
		return err
	}
	if !goal.IsActive {
		return fmt.Errorf("goal %d: %w", goalID, core.ErrNotFound)
	}

	if !cfg.Enabled {
		err := s.store.SetAutoTransfer(ctx, ownerID, goalID, core.AutoTransferConfig{})
		if err == nil {
			slog.InfoContext(ctx, "Auto transfer disabled", "goal_id", goalID, "owner_id", ownerID)
		}
		return err
	}

	if !cfg.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", core.ErrValidation, cfg.Frequency)
	}
	if err := cfg.Amount.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	account, err := s.store.GetAccount(ctx, ownerID, cfg.FromAccountID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return fmt.Errorf("account %d: %w", cfg.FromAccountID, core.ErrNotFound)
	}

	cfg.NextPaymentAt = cfg.Frequency.Next(time.Now().UTC())
	cfg.LastRunAt = time.Time{}
	if err := s.store.SetAutoTransfer(ctx, ownerID, goalID, cfg); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Auto transfer enabled",
		"goal_id", goalID,
		"owner_id", ownerID,
		"from_account_id", cfg.FromAccountID,
		"amount_cents", cfg.Amount.Cents,
		"frequency", cfg.Frequency,
		"next_payment_at", cfg.NextPaymentAt)
	return nil
}

func (s *GoalService) loadPaymentRefs(ctx context.Context, ownerID string, req core.GoalPaymentRequest) (core.Goal, core.Account, error) {
	if err := req.Amount.Validate(); err != nil {
		return core.Goal{}, core.Account{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	goal, err := s.store.GetGoal(ctx, ownerID, req.GoalID)
	if err != nil {
		return core.Goal{}, core.Account{}, err
	}
	if !goal.IsActive {
		return core.Goal{}, core.Account{}, fmt.Errorf("goal %d: %w", req.GoalID, core.ErrNotFound)
	}
	account, err := s.store.GetAccount(ctx, ownerID, req.AccountID)
	if err != nil {
		return core.Goal{}, core.Account{}, err
	}
	if !account.IsActive {
		return core.Goal{}, core.Account{}, fmt.Errorf("account %d: %w", req.AccountID, core.ErrNotFound)
	}
	return goal, account, nil
}

// emitProgress compares the goal before and after a deposit and emits
// the milestone events for every threshold crossed by exactly this
// deposit. Completion transitions once: the conditional store update
// decides which concurrent depositor gets to announce it.
func (s *GoalService) emitProgress(ctx context.Context, ownerID string, before core.Goal) {
	after, err := s.store.GetGoal(ctx, ownerID, before.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to reload goal after payment",
			"goal_id", before.ID,
			"error", err)
		return
	}

	now := time.Now().UTC()
	prev, curr := before.Progress(), after.Progress()

	s.publish(ctx, &event.Event{
		Kind:        event.KindGoalProgress,
		OwnerID:     ownerID,
		Title:       "Goal progress",
		Body:        fmt.Sprintf("%s is at %d%%", after.Name, curr),
		OccurredAt:  now,
		GoalID:      after.ID,
		Progress:    curr,
		AmountCents: after.Current.Cents,
	})

	for _, m := range milestones {
		if prev < m && curr >= m {
			s.publish(ctx, &event.Event{
				Kind:       event.KindGoalMilestone,
				OwnerID:    ownerID,
				Title:      fmt.Sprintf("%s reached %d%%", after.Name, m),
				Body:       fmt.Sprintf("Saved %s of %s", after.Current, after.Target),
				OccurredAt: now,
				GoalID:     after.ID,
				Progress:   curr,
				Milestone:  m,
			})
		}
	}

	if !after.Current.LessThan(after.Target) {
		claimed, err := s.store.CompleteGoal(ctx, ownerID, after.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to complete goal",
				"goal_id", after.ID,
				"error", err)
			return
		}
		if claimed {
			s.publish(ctx, &event.Event{
				Kind:        event.KindGoalCompleted,
				OwnerID:     ownerID,
				Title:       fmt.Sprintf("%s completed", after.Name),
				Body:        fmt.Sprintf("Saved %s of %s", after.Current, after.Target),
				OccurredAt:  now,
				GoalID:      after.ID,
				Progress:    curr,
				AmountCents: after.Current.Cents,
			})
		}
	}
}

func (s *GoalService) publish(ctx context.Context, e *event.Event) {
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

func paymentDescription(given, fallback string) string {
	if strings.TrimSpace(given) != "" {
		return given
	}
	return fallback
}
