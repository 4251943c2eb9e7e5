package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stash/internal/core"
	"stash/internal/ledger"
)

type accountResponse struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	BalanceCents       int64  `json:"balance_cents"`
	Currency           string `json:"currency"`
	MonthlyBudgetCents *int64 `json:"monthly_budget_cents,omitempty"`
	IsActive           bool   `json:"is_active"`
	CreatedAt          string `json:"created_at"`
}

type transactionResponse struct {
	ID            int64  `json:"id"`
	Type          string `json:"type"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	Category      string `json:"category,omitempty"`
	FromAccountID int64  `json:"from_account_id,omitempty"`
	ToAccountID   int64  `json:"to_account_id,omitempty"`
	GoalID        int64  `json:"goal_id,omitempty"`
	OccurredAt    string `json:"occurred_at"`
	IsRecurring   bool   `json:"is_recurring,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type autoPayResponse struct {
	Enabled       bool   `json:"enabled"`
	FromAccountID int64  `json:"from_account_id,omitempty"`
	AmountCents   int64  `json:"amount_cents,omitempty"`
	Frequency     string `json:"frequency,omitempty"`
	NextPaymentAt string `json:"next_payment_at,omitempty"`
	LastRunAt     string `json:"last_run_at,omitempty"`
}

type goalResponse struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	TargetCents  int64           `json:"target_cents"`
	CurrentCents int64           `json:"current_cents"`
	Progress     int             `json:"progress"`
	TargetDate   string          `json:"target_date,omitempty"`
	IsCompleted  bool            `json:"is_completed"`
	AutoPay      autoPayResponse `json:"autopay"`
	CreatedAt    string          `json:"created_at"`
}

type notificationResponse struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

type summaryResponse struct {
	TotalBalanceCents int64                 `json:"total_balance_cents"`
	Accounts          []accountResponse     `json:"accounts"`
	Goals             []goalResponse        `json:"goals"`
	Transactions      []transactionResponse `json:"transactions"`
}

func toAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		ID:                 a.ID,
		Name:               a.Name,
		Type:               string(a.Type),
		BalanceCents:       a.Balance.Cents,
		Currency:           a.Currency,
		MonthlyBudgetCents: a.MonthlyBudgetCents,
		IsActive:           a.IsActive,
		CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		Type:          string(t.Type),
		AmountCents:   t.Amount.Cents,
		Currency:      t.Currency,
		Description:   t.Description,
		Category:      t.Category,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		GoalID:        t.GoalID,
		OccurredAt:    t.OccurredAt.UTC().Format(time.RFC3339),
		IsRecurring:   t.IsRecurring,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toGoalResponse(g core.Goal) goalResponse {
	resp := goalResponse{
		ID:           g.ID,
		Name:         g.Name,
		TargetCents:  g.Target.Cents,
		CurrentCents: g.Current.Cents,
		Progress:     g.Progress(),
		IsCompleted:  g.IsCompleted,
		CreatedAt:    g.CreatedAt.UTC().Format(time.RFC3339),
		AutoPay: autoPayResponse{
			Enabled:       g.AutoPayment.Enabled,
			FromAccountID: g.AutoPayment.FromAccountID,
			AmountCents:   g.AutoPayment.Amount.Cents,
			Frequency:     string(g.AutoPayment.Frequency),
		},
	}
	if !g.TargetDate.IsZero() {
		resp.TargetDate = g.TargetDate.UTC().Format(time.RFC3339)
	}
	if !g.AutoPayment.NextPaymentAt.IsZero() {
		resp.AutoPay.NextPaymentAt = g.AutoPayment.NextPaymentAt.UTC().Format(time.RFC3339)
	}
	if !g.AutoPayment.LastRunAt.IsZero() {
		resp.AutoPay.LastRunAt = g.AutoPayment.LastRunAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toSummaryResponse(snap core.OwnerSnapshot) summaryResponse {
	resp := summaryResponse{
		TotalBalanceCents: snap.TotalBalance.Cents,
		Accounts:          []accountResponse{},
		Goals:             []goalResponse{},
		Transactions:      []transactionResponse{},
	}
	for _, a := range snap.Accounts {
		resp.Accounts = append(resp.Accounts, toAccountResponse(a))
	}
	for _, g := range snap.Goals {
		resp.Goals = append(resp.Goals, toGoalResponse(g))
	}
	for _, t := range snap.Transactions {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(t))
	}
	return resp
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", core.ErrValidation, r.PathValue("id"))
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	return nil
}

// amountCents resolves an amount given either as integer cents or as a
// decimal string ("12.34").
func amountCents(cents int64, decimal string) (int64, error) {
	if decimal != "" {
		parsed, err := core.ParseDecimalToCents(decimal)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid amount %q", core.ErrValidation, decimal)
		}
		return parsed, nil
	}
	return cents, nil
}

func (s *Server) invalidateSummary(ownerID string) {
	s.summaryCache.Invalidate(ownerID)
}

// ---- accounts ----

type createAccountRequest struct {
	Name               string `json:"name"`
	Type               string `json:"type"`
	OpeningCents       int64  `json:"opening_cents"`
	Opening            string `json:"opening,omitempty"`
	Currency           string `json:"currency"`
	MonthlyBudgetCents *int64 `json:"monthly_budget_cents,omitempty"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req createAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	opening := req.OpeningCents
	if req.Opening != "" {
		parsed, err := core.ParseDecimalToCents(req.Opening)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid opening amount %q", core.ErrValidation, req.Opening))
			return
		}
		opening = parsed
	}

	account, err := s.accounts.Create(r.Context(), ownerID, ledger.CreateAccountRequest{
		Name:               req.Name,
		Type:               core.AccountType(req.Type),
		OpeningCents:       opening,
		Currency:           req.Currency,
		MonthlyBudgetCents: req.MonthlyBudgetCents,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request, ownerID string) {
	accounts, err := s.accounts.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := []accountResponse{}
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request, ownerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	account, err := s.accounts.Get(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) handleDeactivateAccount(w http.ResponseWriter, r *http.Request, ownerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.accounts.Deactivate(r.Context(), ownerID, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)
	w.WriteHeader(http.StatusNoContent)
}

// ---- transactions ----

type createTransactionRequest struct {
	Type          string `json:"type"`
	AmountCents   int64  `json:"amount_cents"`
	Amount        string `json:"amount,omitempty"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	Category      string `json:"category,omitempty"`
	FromAccountID int64  `json:"from_account_id,omitempty"`
	ToAccountID   int64  `json:"to_account_id,omitempty"`
	OccurredAt    string `json:"occurred_at,omitempty"`
	IsRecurring   bool   `json:"is_recurring,omitempty"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req createTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// Goal money moves through the goal endpoints, where progress and
	// completion are tracked
	if core.TransactionType(req.Type) == core.TxGoalPayment {
		writeError(w, r, fmt.Errorf("%w: use /v1/goals/{id}/pay or /withdraw for goal payments", core.ErrValidation))
		return
	}

	cents, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	occurredAt := time.Now().UTC()
	if req.OccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid occurred_at %q", core.ErrValidation, req.OccurredAt))
			return
		}
	}

	tx, err := s.transactions.Create(r.Context(), ownerID, core.CreateTransactionRequest{
		Type:          core.TransactionType(req.Type),
		Amount:        core.Money{Cents: cents},
		Currency:      strings.ToUpper(req.Currency),
		Description:   req.Description,
		Category:      req.Category,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		OccurredAt:    occurredAt,
		IsRecurring:   req.IsRecurring,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, ownerID string) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	transactions, err := s.transactions.List(r.Context(), ownerID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := []transactionResponse{}
	for _, t := range transactions {
		resp = append(resp, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, ownerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.transactions.Get(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

type updateTransactionRequest struct {
	Description   *string `json:"description,omitempty"`
	Category      *string `json:"category,omitempty"`
	AmountCents   *int64  `json:"amount_cents,omitempty"`
	Type          *string `json:"type,omitempty"`
	FromAccountID *int64  `json:"from_account_id,omitempty"`
	ToAccountID   *int64  `json:"to_account_id,omitempty"`
	GoalID        *int64  `json:"goal_id,omitempty"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, ownerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	patch := core.UpdateTransactionRequest{
		Description:   req.Description,
		Category:      req.Category,
		AmountCents:   req.AmountCents,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		GoalID:        req.GoalID,
	}
	if req.Type != nil {
		t := core.TransactionType(*req.Type)
		patch.Type = &t
	}

	tx, err := s.transactions.Update(r.Context(), ownerID, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, ownerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.transactions.Delete(r.Context(), ownerID, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)
	w.WriteHeader(http.StatusNoContent)
}

// ---- goals ----

type createGoalRequest struct {
	Name        string `json:"name"`
	TargetCents int64  `json:"target_cents"`
	Target      string `json:"target,omitempty"`
	TargetDate  string `json:"target_date,omitempty"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req createGoalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, err := amountCents(req.TargetCents, req.Target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var targetDate time.Time
	if req.TargetDate != "" {
		targetDate, err = time.Parse(time.RFC3339, req.TargetDate)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid target_date %q", core.ErrValidation, req.TargetDate))
			return
		}
	}

	goal, err := s.goals.Create(r.Context(), ownerID, ledger.CreateGoalRequest{
		Name:        req.Name,
		TargetCents: target,
		TargetDate:  targetDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)
	writeJSON(w, http.StatusCreated, toGoalResponse(goal))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request, ownerID string) {
	goals, err := s.goals.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := []goalResponse{}
	for _, g := range goals {
		resp = append(resp, toGoalResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request, ownerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	goal, err := s.goals.Get(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(goal))
}

func (s *Server) handleDeactivateGoal(w http.ResponseWriter, r *http.Request, ownerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.goals.Deactivate(r.Context(), ownerID, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)
	w.WriteHeader(http.StatusNoContent)
}

type goalPaymentRequest struct {
	AccountID   int64  `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Server) decodeGoalPayment(r *http.Request) (core.GoalPaymentRequest, error) {
	id, err := pathID(r)
	if err != nil {
		return core.GoalPaymentRequest{}, err
	}
	var req goalPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		return core.GoalPaymentRequest{}, err
	}
	cents, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		return core.GoalPaymentRequest{}, err
	}
	return core.GoalPaymentRequest{
		GoalID:      id,
		AccountID:   req.AccountID,
		Amount:      core.Money{Cents: cents},
		Description: req.Description,
	}, nil
}

func (s *Server) handleGoalPay(w http.ResponseWriter, r *http.Request, ownerID string) {
	req, err := s.decodeGoalPayment(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.goals.Pay(r.Context(), ownerID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleGoalWithdraw(w http.ResponseWriter, r *http.Request, ownerID string) {
	req, err := s.decodeGoalPayment(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.goals.Withdraw(r.Context(), ownerID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

type autoPayRequest struct {
	Enabled       bool   `json:"enabled"`
	FromAccountID int64  `json:"from_account_id,omitempty"`
	AmountCents   int64  `json:"amount_cents,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Frequency     string `json:"frequency,omitempty"`
}

func (s *Server) handleGoalAutoPay(w http.ResponseWriter, r *http.Request, ownerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req autoPayRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cents, err := amountCents(req.AmountCents, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = s.goals.SetupAutoTransfer(r.Context(), ownerID, id, core.AutoTransferConfig{
		Enabled:       req.Enabled,
		FromAccountID: req.FromAccountID,
		Amount:        core.Money{Cents: cents},
		Frequency:     core.Frequency(req.Frequency),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateSummary(ownerID)

	goal, err := s.goals.Get(r.Context(), ownerID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(goal))
}

// ---- notifications ----

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, ownerID string) {
	notifications, err := s.store.ListNotifications(r.Context(), ownerID, 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := []notificationResponse{}
	for _, n := range notifications {
		resp = append(resp, notificationResponse{
			ID:        n.ID,
			Kind:      n.Kind,
			Title:     n.Title,
			Body:      n.Body,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, ownerID string) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.MarkNotificationRead(r.Context(), ownerID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- summary and stream ----

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, ownerID string) {
	if snap, ok := s.summaryCache.Get(ownerID); ok {
		writeJSON(w, http.StatusOK, toSummaryResponse(snap))
		return
	}
	snap, err := s.store.OwnerSnapshot(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.summaryCache.Set(ownerID, snap)
	writeJSON(w, http.StatusOK, toSummaryResponse(snap))
}

// handleStream pushes the owner's full result set as server-sent events
// whenever a batch commits, starting with the current state.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, ownerID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates := s.store.Subscribe(r.Context(), ownerID)

	writeFrame := func(snap core.OwnerSnapshot) bool {
		payload, err := json.Marshal(toSummaryResponse(snap))
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: summary\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if snap, err := s.store.OwnerSnapshot(r.Context(), ownerID); err == nil {
		if !writeFrame(snap) {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if !writeFrame(snap) {
				return
			}
		}
	}
}
