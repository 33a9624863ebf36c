package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger/memory"
	applog "budgetapp/internal/log"
	"budgetapp/internal/middleware/trace"
	"budgetapp/internal/services"
)

var fixedNow = time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, rpm int) *Server {
	t.Helper()
	store := memory.New()
	svc := Services{
		Users:        services.NewUserService(store),
		Accounts:     services.NewAccountService(store, nil),
		Transactions: services.NewTransactionService(store, nil),
		Budgets:      services.NewBudgetService(store, nil),
		Dashboard:    services.NewDashboardService(store),
	}
	srv := NewServer(":0", svc, Options{RequestsPerMinute: rpm, Now: func() time.Time { return fixedNow }})
	t.Cleanup(func() { srv.limiter.Stop() })
	return srv
}

func do(t *testing.T, srv *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, 0)
	rr := do(t, srv, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing middleware headers: %v", rr.Header())
	}
	if m := srv.Metrics(); m.TotalRequests != 1 || m.ServerErrors != 0 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestMissingUserHeader(t *testing.T) {
	srv := newTestServer(t, 0)
	rr := do(t, srv, http.MethodGet, "/api/accounts", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decode[errorBody](t, rr); !strings.Contains(body.Error, HeaderUserID) {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestLedgerFlow(t *testing.T) {
	srv := newTestServer(t, 0)

	if rr := do(t, srv, http.MethodPost, "/api/users", "u1", map[string]string{"email": "u1@example.com", "name": "U"}); rr.Code != http.StatusOK {
		t.Fatalf("ensure user = %d %s", rr.Code, rr.Body)
	}

	rr := do(t, srv, http.MethodPost, "/api/accounts", "u1", `{"name":"Main","type":"current","balance":"100.50"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create account = %d %s", rr.Code, rr.Body)
	}
	main := decode[accountDTO](t, rr)
	if !main.IsDefault || main.Type != "CURRENT" || main.Balance.String() != "100.5" {
		t.Fatalf("account = %+v", main)
	}

	rr = do(t, srv, http.MethodPost, "/api/accounts", "u1", `{"name":"Savings","type":"SAVINGS","balance":0,"isDefault":true}`)
	savings := decode[accountDTO](t, rr)
	if rr.Code != http.StatusCreated || !savings.IsDefault {
		t.Fatalf("second account = %d %+v", rr.Code, savings)
	}

	rr = do(t, srv, http.MethodPut, "/api/accounts/"+main.ID+"/default", "u1", nil)
	if rr.Code != http.StatusOK || !decode[accountDTO](t, rr).IsDefault {
		t.Fatalf("set default = %d %s", rr.Code, rr.Body)
	}

	var ids []string
	for _, tx := range []string{
		`{"accountId":"%s","type":"EXPENSE","amount":40,"category":"groceries","date":"2024-06-18","description":"market"}`,
		`{"accountId":"%s","type":"EXPENSE","amount":"12.25","category":"food","date":"2024-06-19T08:00:00Z","isRecurring":true,"recurringInterval":"monthly"}`,
		`{"accountId":"%s","type":"INCOME","amount":500,"category":"salary","date":"2024-06-01"}`,
	} {
		rr = do(t, srv, http.MethodPost, "/api/transactions", "u1", fmt.Sprintf(tx, main.ID))
		if rr.Code != http.StatusCreated {
			t.Fatalf("create transaction = %d %s", rr.Code, rr.Body)
		}
		ids = append(ids, decode[transactionDTO](t, rr).ID)
	}

	rr = do(t, srv, http.MethodGet, "/api/accounts", "u1", nil)
	list := decode[[]accountDTO](t, rr)
	if len(list) != 2 || list[0].ID != savings.ID || *list[1].TransactionCount != 3 {
		t.Fatalf("accounts = %+v", list)
	}

	rr = do(t, srv, http.MethodGet, "/api/accounts/"+main.ID+"?range=7d&sort=amount&dir=asc&type=expense", "u1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("view = %d %s", rr.Code, rr.Body)
	}
	view := decode[accountViewDTO](t, rr)
	if view.Chart.Range != "7D" || len(view.Chart.Buckets) != 2 || view.Chart.Buckets[0].Label != "Jun 18" {
		t.Fatalf("chart = %+v", view.Chart)
	}
	if len(view.Transactions) != 2 || view.Transactions[0].Amount.String() != "12.25" {
		t.Fatalf("table = %+v", view.Transactions)
	}
	if view.Transactions[0].NextRecurringDate == nil {
		t.Fatal("recurring transaction without next date")
	}

	if rr = do(t, srv, http.MethodPut, "/api/budget", "u1", `{"amount":100}`); rr.Code != http.StatusOK {
		t.Fatalf("set budget = %d %s", rr.Code, rr.Body)
	}
	rr = do(t, srv, http.MethodGet, "/api/budget", "u1", nil)
	status := decode[budgetStatusDTO](t, rr)
	if status.Budget == nil || status.Expenses.String() != "52.25" || status.Usage.Percent.String() != "52.25" || status.Usage.Tier != "normal" {
		t.Fatalf("budget status = %+v", status)
	}
	if status.Usage.OverBudget {
		t.Fatal("52.25 of 100 reported as over budget")
	}
	do(t, srv, http.MethodPut, "/api/budget", "u1", `{"amount":50}`)
	if status = decode[budgetStatusDTO](t, do(t, srv, http.MethodGet, "/api/budget", "u1", nil)); !status.Usage.OverBudget {
		t.Fatalf("52.25 of 50 not over budget: %+v", status.Usage)
	}

	rr = do(t, srv, http.MethodGet, "/api/dashboard", "u1", nil)
	dash := decode[dashboardDTO](t, rr)
	if dash.DefaultAccountID != main.ID || len(dash.Recent) != 3 || len(dash.Breakdown) != 2 || dash.Breakdown[0].Category != "groceries" {
		t.Fatalf("dashboard = %+v", dash)
	}
	if dash.Budget == nil || dash.MonthTotal.Income.String() != "500" {
		t.Fatalf("dashboard budget/totals = %+v %+v", dash.Budget, dash.MonthTotal)
	}

	rr = do(t, srv, http.MethodPost, "/api/transactions/bulk-delete", "u1", map[string][]string{"ids": {ids[0], ids[0], "nope"}})
	if got := decode[map[string]int](t, rr); got["deleted"] != 1 {
		t.Fatalf("bulk delete = %v", got)
	}

	if rr = do(t, srv, http.MethodDelete, "/api/accounts/"+main.ID, "u1", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete = %d %s", rr.Code, rr.Body)
	}
	if rr = do(t, srv, http.MethodGet, "/api/accounts/"+main.ID, "u1", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("deleted account = %d", rr.Code)
	}
	if rr = do(t, srv, http.MethodGet, "/api/budget", "u1", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("budget without default = %d %s", rr.Code, rr.Body)
	}
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t, 0)
	cases := []struct {
		query  string
		status int
		want   string
	}{
		{"", http.StatusOK, ""},
		{"?type=income", http.StatusOK, "INCOME"},
		{"?type=EXPENSE", http.StatusOK, "EXPENSE"},
		{"?type=TRANSFER", http.StatusBadRequest, ""},
	}
	total := len(core.Categories())
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/api/categories"+tc.query, "", nil)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.status, rr.Body)
			}
			if tc.status != http.StatusOK {
				return
			}
			list := decode[[]categoryDTO](t, rr)
			if tc.want == "" && len(list) != total {
				t.Fatalf("got %d categories, want %d", len(list), total)
			}
			for _, c := range list {
				if tc.want != "" && c.Type != tc.want {
					t.Fatalf("category %s has type %s", c.ID, c.Type)
				}
			}
			if len(list) == 0 || len(list) > total {
				t.Fatalf("unexpected category count %d", len(list))
			}
		})
	}
}

func TestRequestErrors(t *testing.T) {
	srv := newTestServer(t, 0)
	do(t, srv, http.MethodPost, "/api/users", "u1", `{}`)
	rr := do(t, srv, http.MethodPost, "/api/accounts", "u1", `{"name":"A","type":"CURRENT","balance":0}`)
	acct := decode[accountDTO](t, rr)
	do(t, srv, http.MethodPost, "/api/users", "u2", `{}`)

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
	}{
		{"unknown field", http.MethodPost, "/api/accounts", "u1", `{"name":"B","type":"CURRENT","balance":0,"color":"red"}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/accounts", "u1", `{"name":`, http.StatusBadRequest},
		{"empty body", http.MethodPut, "/api/budget", "u1", ``, http.StatusBadRequest},
		{"bad account type", http.MethodPost, "/api/accounts", "u1", `{"name":"B","type":"CHECKING","balance":0}`, http.StatusBadRequest},
		{"missing balance", http.MethodPost, "/api/accounts", "u1", `{"name":"B","type":"CURRENT"}`, http.StatusBadRequest},
		{"null balance", http.MethodPost, "/api/accounts", "u1", `{"name":"B","type":"CURRENT","balance":null}`, http.StatusBadRequest},
		{"unknown user", http.MethodPost, "/api/accounts", "ghost", `{"name":"B","type":"CURRENT","balance":0}`, http.StatusNotFound},
		{"category mismatch", http.MethodPost, "/api/transactions", "u1", `{"accountId":"` + acct.ID + `","type":"INCOME","amount":1,"category":"groceries","date":"2024-06-01"}`, http.StatusBadRequest},
		{"missing amount", http.MethodPost, "/api/transactions", "u1", `{"accountId":"` + acct.ID + `","type":"INCOME","category":"salary","date":"2024-06-01"}`, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/transactions", "u1", `{"accountId":"` + acct.ID + `","type":"INCOME","amount":1,"category":"salary","date":"June"}`, http.StatusBadRequest},
		{"foreign account", http.MethodGet, "/api/accounts/" + acct.ID, "u2", ``, http.StatusNotFound},
		{"bad range", http.MethodGet, "/api/accounts/" + acct.ID + "?range=2Y", "u1", ``, http.StatusBadRequest},
		{"bad sort", http.MethodGet, "/api/accounts/" + acct.ID + "?sort=name", "u1", ``, http.StatusBadRequest},
		{"bad recurring filter", http.MethodGet, "/api/accounts/" + acct.ID + "?recurring=sometimes", "u1", ``, http.StatusBadRequest},
		{"non-positive budget", http.MethodPut, "/api/budget", "u1", `{"amount":-3}`, http.StatusBadRequest},
		{"wrong method", http.MethodPatch, "/api/budget", "u1", `{}`, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, srv, tc.method, tc.path, tc.user, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.status, rr.Body)
			}
			if tc.status != http.StatusMethodNotAllowed && decode[errorBody](t, rr).Error == "" {
				t.Fatal("empty error message")
			}
		})
	}
}

func TestOutOfRangeMoneyIsRejected(t *testing.T) {
	srv := newTestServer(t, 0)
	do(t, srv, http.MethodPost, "/api/users", "u1", `{}`)
	rr := do(t, srv, http.MethodPost, "/api/accounts", "u1", `{"name":"Main","type":"CURRENT","balance":"12.5"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body)
	}
	acct := decode[accountDTO](t, rr)

	writes := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"huge balance", http.MethodPost, "/api/accounts", `{"name":"B","type":"CURRENT","balance":"1e400"}`},
		{"tiny balance", http.MethodPost, "/api/accounts", `{"name":"B","type":"CURRENT","balance":1e-400}`},
		{"long balance", http.MethodPost, "/api/accounts", `{"name":"B","type":"CURRENT","balance":"123456789012345678.91"}`},
		{"tiny amount", http.MethodPost, "/api/transactions", `{"accountId":"` + acct.ID + `","type":"INCOME","amount":"1e-999999999","category":"salary","date":"2024-06-01"}`},
		{"huge budget", http.MethodPut, "/api/budget", `{"amount":1e300}`},
	}
	for _, tc := range writes {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, srv, tc.method, tc.path, "u1", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rr.Code, rr.Body)
			}
			if decode[errorBody](t, rr).Error == "" {
				t.Fatal("empty error message")
			}
		})
	}

	for _, path := range []string{"/api/accounts", "/api/dashboard"} {
		rr := do(t, srv, http.MethodGet, path, "u1", nil)
		if rr.Code != http.StatusOK || rr.Body.Len() == 0 || !json.Valid(rr.Body.Bytes()) {
			t.Fatalf("%s: %d %q", path, rr.Code, rr.Body)
		}
	}
	accounts := decode[[]accountDTO](t, do(t, srv, http.MethodGet, "/api/accounts", "u1", nil))
	if len(accounts) != 1 {
		t.Fatalf("rejected writes must not persist, got %d accounts", len(accounts))
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	srv := newTestServer(t, 1)
	do(t, srv, http.MethodPost, "/api/users", "u1", `{}`)

	rr := do(t, srv, http.MethodPut, "/api/budget", "u1", `{"amount":10}`)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d headers = %v", rr.Code, rr.Header())
	}
	for i := 0; i < 3; i++ {
		if rr := do(t, srv, http.MethodGet, "/api/accounts", "u1", nil); rr.Code != http.StatusOK {
			t.Fatalf("reads must not be limited, got %d", rr.Code)
		}
	}
	if rr := do(t, srv, http.MethodPut, "/api/budget", "u2", `{"amount":10}`); rr.Code == http.StatusTooManyRequests {
		t.Fatal("limit leaked across users")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{core.NewValidationError("amount", core.ErrInvalidAmount), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", core.NewNotFoundError("account", "a1")), http.StatusNotFound},
		{core.AsConsistencyFailure("create account", errors.New("disk full")), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestInternalErrorsAreNotEchoed(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("dsn=postgres://secret"))
	if rr.Code != http.StatusInternalServerError || strings.Contains(rr.Body.String(), "secret") {
		t.Fatalf("got %d %s", rr.Code, rr.Body)
	}
	if got := decode[errorBody](t, rr).Error; got != "internal error" {
		t.Fatalf("message = %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(context.WithValue(req.Context(), trace.RequestIDKey, "req_42"))
	rr = httptest.NewRecorder()
	writeError(rr, req, errors.New("dsn=postgres://secret"))
	if got := decode[errorBody](t, rr).Error; got != "internal error (request req_42)" {
		t.Fatalf("message = %q", got)
	}
}

func TestErrorLogsCarryOneComponent(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"internal", errors.New("boom")},
		{"consistency", core.AsConsistencyFailure("create account", errors.New("disk full"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := applog.New(applog.Config{
				Component: applog.ComponentHTTP,
				Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/accounts", nil)
			req = req.WithContext(context.WithValue(req.Context(), applog.LoggerContextKey, logger))

			writeError(httptest.NewRecorder(), req, tc.err)

			out := buf.String()
			if n := strings.Count(out, "component="); n != 1 {
				t.Fatalf("component logged %d times: %s", n, out)
			}
			if !strings.Contains(out, `operation="POST /api/accounts"`) {
				t.Fatalf("missing operation: %s", out)
			}
		})
	}
}
