package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"stash/internal/core"
)

type AccountService struct {
	store Store
}

func NewAccountService(store Store) *AccountService {
	return &AccountService{store: store}
}

// CreateAccountRequest opens a new account. The opening balance is the
// only balance value ever written directly; everything after goes
// through transaction batches.
type CreateAccountRequest struct {
	Name               string
	Type               core.AccountType
	OpeningCents       int64
	Currency           string
	MonthlyBudgetCents *int64
}

func (r CreateAccountRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: empty account name", core.ErrValidation)
	}
	switch r.Type {
	case core.AccountMain, core.AccountSavings, core.AccountExpenses, core.AccountCustom:
	default:
		return fmt.Errorf("%w: unknown account type %q", core.ErrValidation, r.Type)
	}
	if r.OpeningCents < 0 {
		return fmt.Errorf("%w: opening balance cannot be negative", core.ErrValidation)
	}
	if len(r.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", core.ErrValidation)
	}
	if r.MonthlyBudgetCents != nil && *r.MonthlyBudgetCents <= 0 {
		return fmt.Errorf("%w: monthly budget must be positive", core.ErrValidation)
	}
	return nil
}

func (s *AccountService) Create(ctx context.Context, ownerID string, req CreateAccountRequest) (core.Account, error) {
	if err := req.validate(); err != nil {
		return core.Account{}, err
	}

	account, err := s.store.CreateAccount(ctx, core.Account{
		OwnerID:            ownerID,
		Name:               strings.TrimSpace(req.Name),
		Type:               req.Type,
		Balance:            core.Money{Cents: req.OpeningCents},
		Currency:           strings.ToUpper(req.Currency),
		MonthlyBudgetCents: req.MonthlyBudgetCents,
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"id", account.ID,
		"owner_id", ownerID,
		"name", account.Name,
		"opening_cents", req.OpeningCents)
	return account, nil
}

func (s *AccountService) Get(ctx context.Context, ownerID string, id int64) (core.Account, error) {
	return s.store.GetAccount(ctx, ownerID, id)
}

func (s *AccountService) List(ctx context.Context, ownerID string) ([]core.Account, error) {
	return s.store.ListAccounts(ctx, ownerID)
}

// Deactivate soft-deletes an account. History referencing it stays in
// place. An account still funding an enabled auto transfer cannot be
// deactivated; the schedule must be disabled first.
func (s *AccountService) Deactivate(ctx context.Context, ownerID string, id int64) error {
	funding, err := s.store.HasEnabledAutoTransferFrom(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("check auto transfers: %w", err)
	}
	if funding {
		return fmt.Errorf("%w: account %d funds an enabled auto transfer", core.ErrValidation, id)
	}
	if err := s.store.DeactivateAccount(ctx, ownerID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Account deactivated", "id", id, "owner_id", ownerID)
	return nil
}
