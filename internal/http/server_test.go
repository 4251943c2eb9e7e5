package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"stash/internal/ledger"
	"stash/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	txs := ledger.NewTransactionService(repo, nil, ledger.DefaultAlertConfig())
	goals := ledger.NewGoalService(repo, txs, nil)
	srv := NewServer(":0", ledger.NewAccountService(repo), txs, goals, repo)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, owner, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func createAccount(t *testing.T, ts *httptest.Server, owner string, openingCents int64) int64 {
	t.Helper()
	body := fmt.Sprintf(`{"name":"checking","type":"main","opening_cents":%d,"currency":"EUR"}`, openingCents)
	resp, decoded := doJSON(t, ts, http.MethodPost, "/v1/accounts", owner, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create account status = %d, want 201 (%v)", resp.StatusCode, decoded)
	}
	return int64(decoded["id"].(float64))
}

func TestMissingOwnerHeader(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, ts, http.MethodGet, "/v1/accounts", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAccountLifecycle(t *testing.T) {
	ts := newTestServer(t)

	id := createAccount(t, ts, "u1", 10000)

	resp, decoded := doJSON(t, ts, http.MethodGet, fmt.Sprintf("/v1/accounts/%d", id), "u1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get account status = %d, want 200", resp.StatusCode)
	}
	if decoded["balance_cents"].(float64) != 10000 {
		t.Errorf("balance_cents = %v, want 10000", decoded["balance_cents"])
	}

	// Other owners cannot see the account
	resp, _ = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/v1/accounts/%d", id), "u2", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cross-owner get status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, ts, http.MethodDelete, fmt.Sprintf("/v1/accounts/%d", id), "u1", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("deactivate status = %d, want 204", resp.StatusCode)
	}
}

func TestCreateTransactionAndErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	from := createAccount(t, ts, "u1", 10000)
	to := createAccount(t, ts, "u1", 0)

	body := fmt.Sprintf(`{"type":"transfer","amount":"40.00","currency":"EUR","description":"to savings","from_account_id":%d,"to_account_id":%d}`, from, to)
	resp, decoded := doJSON(t, ts, http.MethodPost, "/v1/transactions", "u1", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create transaction status = %d, want 201 (%v)", resp.StatusCode, decoded)
	}
	if decoded["amount_cents"].(float64) != 4000 {
		t.Errorf("amount_cents = %v, want 4000", decoded["amount_cents"])
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "goal payments rejected here",
			body: `{"type":"goal_payment","amount_cents":100,"currency":"EUR","description":"x"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "missing account",
			body: `{"type":"expense","amount_cents":100,"currency":"EUR","description":"x","from_account_id":9999}`,
			want: http.StatusNotFound,
		},
		{
			name: "zero amount",
			body: fmt.Sprintf(`{"type":"expense","amount_cents":0,"currency":"EUR","description":"x","from_account_id":%d}`, from),
			want: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, decoded := doJSON(t, ts, http.MethodPost, "/v1/transactions", "u1", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%v)", resp.StatusCode, tt.want, decoded)
			}
		})
	}
}

func TestUpdateTransactionImmutableFields(t *testing.T) {
	ts := newTestServer(t)
	acc := createAccount(t, ts, "u1", 10000)

	body := fmt.Sprintf(`{"type":"expense","amount_cents":500,"currency":"EUR","description":"groceries","from_account_id":%d}`, acc)
	resp, decoded := doJSON(t, ts, http.MethodPost, "/v1/transactions", "u1", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	id := int64(decoded["id"].(float64))

	resp, decoded = doJSON(t, ts, http.MethodPatch, fmt.Sprintf("/v1/transactions/%d", id), "u1", `{"category":"food"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, want 200 (%v)", resp.StatusCode, decoded)
	}
	if decoded["category"] != "food" {
		t.Errorf("category = %v, want food", decoded["category"])
	}

	resp, _ = doJSON(t, ts, http.MethodPatch, fmt.Sprintf("/v1/transactions/%d", id), "u1", `{"amount_cents":9999}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("monetary patch status = %d, want 422", resp.StatusCode)
	}
}

func TestGoalEndpoints(t *testing.T) {
	ts := newTestServer(t)
	acc := createAccount(t, ts, "u1", 50000)

	resp, decoded := doJSON(t, ts, http.MethodPost, "/v1/goals", "u1", `{"name":"vacation","target_cents":20000}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create goal status = %d, want 201 (%v)", resp.StatusCode, decoded)
	}
	goalID := int64(decoded["id"].(float64))

	payBody := fmt.Sprintf(`{"account_id":%d,"amount_cents":23000}`, acc)
	resp, decoded = doJSON(t, ts, http.MethodPost, fmt.Sprintf("/v1/goals/%d/pay", goalID), "u1", payBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("pay status = %d, want 201 (%v)", resp.StatusCode, decoded)
	}

	resp, decoded = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/v1/goals/%d", goalID), "u1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get goal status = %d, want 200", resp.StatusCode)
	}
	if decoded["current_cents"].(float64) != 23000 {
		t.Errorf("current_cents = %v, want 23000 (deposit not capped)", decoded["current_cents"])
	}
	if decoded["is_completed"] != true {
		t.Error("goal should be completed")
	}

	// Withdrawing more than saved maps to 409
	withdrawBody := fmt.Sprintf(`{"account_id":%d,"amount_cents":99999}`, acc)
	resp, _ = doJSON(t, ts, http.MethodPost, fmt.Sprintf("/v1/goals/%d/withdraw", goalID), "u1", withdrawBody)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("overdraw withdraw status = %d, want 409", resp.StatusCode)
	}

	autoBody := fmt.Sprintf(`{"enabled":true,"from_account_id":%d,"amount_cents":1000,"frequency":"monthly"}`, acc)
	resp, decoded = doJSON(t, ts, http.MethodPut, fmt.Sprintf("/v1/goals/%d/autopay", goalID), "u1", autoBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("autopay status = %d, want 200 (%v)", resp.StatusCode, decoded)
	}
	auto := decoded["autopay"].(map[string]any)
	if auto["enabled"] != true || auto["next_payment_at"] == "" {
		t.Errorf("autopay = %v, want enabled with a scheduled run", auto)
	}
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t)
	createAccount(t, ts, "u1", 7500)

	resp, decoded := doJSON(t, ts, http.MethodGet, "/v1/summary", "u1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status = %d, want 200", resp.StatusCode)
	}
	if decoded["total_balance_cents"].(float64) != 7500 {
		t.Errorf("total_balance_cents = %v, want 7500", decoded["total_balance_cents"])
	}

	// A write invalidates the cached summary
	createAccount(t, ts, "u1", 2500)
	_, decoded = doJSON(t, ts, http.MethodGet, "/v1/summary", "u1", "")
	if decoded["total_balance_cents"].(float64) != 10000 {
		t.Errorf("total_balance_cents after write = %v, want 10000", decoded["total_balance_cents"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
