package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"budgetapp/internal/amqp"
	"budgetapp/internal/core"
	"budgetapp/internal/ledger"
	"budgetapp/internal/ledger/memory"
	"budgetapp/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (r *recorder) PublishEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
	return r.err
}

func (r *recorder) types() []amqp.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]amqp.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type env struct {
	store        ledger.Store
	events       *recorder
	accounts     *AccountService
	transactions *TransactionService
	budgets      *BudgetService
	users        *UserService
	dashboard    *DashboardService
}

func newEnv(t *testing.T, store ledger.Store) *env {
	t.Helper()
	rec := &recorder{}
	e := &env{
		store:        store,
		events:       rec,
		accounts:     NewAccountService(store, rec),
		transactions: NewTransactionService(store, rec),
		budgets:      NewBudgetService(store, rec),
		users:        NewUserService(store),
		dashboard:    NewDashboardService(store),
	}
	for _, id := range []string{"u1", "u2"} {
		if _, err := e.users.EnsureUser(context.Background(), core.User{ID: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("ensure user: %v", err)
		}
	}
	return e
}

func newSQLiteStore(t *testing.T) ledger.Store {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// stores runs fn against every store implementation that needs no server.
func stores(t *testing.T, fn func(t *testing.T, e *env)) {
	t.Run("memory", func(t *testing.T) { fn(t, newEnv(t, memory.New())) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newEnv(t, newSQLiteStore(t))) })
}

func (e *env) mustAccount(t *testing.T, userID, name string, isDefault bool) core.Account {
	t.Helper()
	a, err := e.accounts.CreateAccount(context.Background(), CreateAccountInput{
		UserID: userID, Name: name, Type: core.AccountCurrent, Balance: "100.00", IsDefault: isDefault,
	})
	if err != nil {
		t.Fatalf("create account %s: %v", name, err)
	}
	return a
}

func (e *env) mustTransaction(t *testing.T, userID, accountID string, typ core.TransactionType, amount, category string, date time.Time) core.Transaction {
	t.Helper()
	tr, err := e.transactions.CreateTransaction(context.Background(), CreateTransactionInput{
		UserID: userID, AccountID: accountID, Type: typ, Amount: amount, Category: category, Date: date,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tr
}

func countDefaults(t *testing.T, r ledger.Reader, userID string) (defaults, total int) {
	t.Helper()
	accts, err := r.FindAccountsByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("find accounts: %v", err)
	}
	for _, a := range accts {
		if a.IsDefault {
			defaults++
		}
	}
	return defaults, len(accts)
}

func assertOneDefault(t *testing.T, r ledger.Reader, userID string) {
	t.Helper()
	d, n := countDefaults(t, r, userID)
	want := 0
	if n > 0 {
		want = 1
	}
	if d != want {
		t.Fatalf("user %s has %d defaults across %d accounts", userID, d, n)
	}
}
