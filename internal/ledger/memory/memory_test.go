package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger"

	"github.com/shopspring/decimal"
)

func seedUser(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.UpsertUser(ctx, core.User{ID: id, Email: id + "@example.com"})
		return err
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	seedUser(t, s, "u1")
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.CreateAccountRecord(ctx, core.Account{UserID: "u1", Name: "Main", Type: core.AccountCurrent, IsDefault: true}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	accts, _ := s.FindAccountsByUser(context.Background(), "u1")
	if len(accts) != 0 {
		t.Fatalf("expected rollback, found %d accounts", len(accts))
	}
}

func TestSecondDefaultRejected(t *testing.T) {
	s := New()
	seedUser(t, s, "u1")
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.CreateAccountRecord(ctx, core.Account{UserID: "u1", Name: "A", Type: core.AccountCurrent, IsDefault: true}); err != nil {
			return err
		}
		_, err := tx.CreateAccountRecord(ctx, core.Account{UserID: "u1", Name: "B", Type: core.AccountSavings, IsDefault: true})
		return err
	})
	if !errors.Is(err, ledger.ErrDuplicateDefault) {
		t.Fatalf("expected ErrDuplicateDefault, got %v", err)
	}
}

func TestOrdering(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s := New(WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))
	seedUser(t, s, "u1")
	ctx := context.Background()

	var first, second core.Account
	err := s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		if first, err = tx.CreateAccountRecord(ctx, core.Account{UserID: "u1", Name: "A", Type: core.AccountCurrent}); err != nil {
			return err
		}
		if second, err = tx.CreateAccountRecord(ctx, core.Account{UserID: "u1", Name: "B", Type: core.AccountCurrent}); err != nil {
			return err
		}
		for _, amt := range []int64{1, 2, 3} {
			if _, err := tx.CreateTransactionRecord(ctx, core.Transaction{
				UserID: "u1", AccountID: first.ID, Type: core.Expense,
				Amount: decimal.NewFromInt(amt), Category: "groceries", Date: base,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	accts, _ := s.FindAccountsByUser(ctx, "u1")
	if len(accts) != 2 || accts[0].ID != second.ID || accts[1].ID != first.ID {
		t.Fatalf("accounts not newest first: %+v", accts)
	}
	txs, _ := s.FindTransactionsByUser(ctx, "u1")
	for i, tr := range txs {
		if !tr.Amount.Equal(decimal.NewFromInt(int64(i + 1))) {
			t.Fatalf("transactions out of creation order at %d: %s", i, tr.Amount)
		}
	}
	counts, _ := s.CountTransactionsByAccount(ctx, "u1")
	if counts[first.ID] != 3 || counts[second.ID] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestDeleteAccountRequiresNoTransactions(t *testing.T) {
	s := New()
	seedUser(t, s, "u1")
	ctx := context.Background()

	var acct core.Account
	_ = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		acct, _ = tx.CreateAccountRecord(ctx, core.Account{UserID: "u1", Name: "A", Type: core.AccountCurrent})
		_, err := tx.CreateTransactionRecord(ctx, core.Transaction{
			UserID: "u1", AccountID: acct.ID, Type: core.Income,
			Amount: decimal.NewFromInt(10), Category: "salary", Date: time.Now(),
		})
		return err
	})

	err := s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.DeleteAccountRecord(ctx, acct.ID)
	})
	if !errors.Is(err, ledger.ErrDanglingTransactions) {
		t.Fatalf("expected ErrDanglingTransactions, got %v", err)
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.DeleteTransactionsByAccount(ctx, acct.ID); err != nil {
			return err
		}
		return tx.DeleteAccountRecord(ctx, acct.ID)
	})
	if err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
	if _, err := s.FindAccount(ctx, acct.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteTransactionRecordsScopedToUser(t *testing.T) {
	s := New()
	seedUser(t, s, "u1")
	seedUser(t, s, "u2")
	ctx := context.Background()

	var mine, theirs core.Transaction
	_ = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		a1, _ := tx.CreateAccountRecord(ctx, core.Account{UserID: "u1", Name: "A", Type: core.AccountCurrent})
		a2, _ := tx.CreateAccountRecord(ctx, core.Account{UserID: "u2", Name: "B", Type: core.AccountCurrent})
		mine, _ = tx.CreateTransactionRecord(ctx, core.Transaction{UserID: "u1", AccountID: a1.ID, Type: core.Expense, Amount: decimal.NewFromInt(1), Category: "food", Date: time.Now()})
		theirs, _ = tx.CreateTransactionRecord(ctx, core.Transaction{UserID: "u2", AccountID: a2.ID, Type: core.Expense, Amount: decimal.NewFromInt(1), Category: "food", Date: time.Now()})
		return nil
	})

	var removed int
	_ = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		removed, err = tx.DeleteTransactionRecords(ctx, "u1", []string{mine.ID, theirs.ID})
		return err
	})
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := s.FindTransaction(ctx, theirs.ID); err != nil {
		t.Fatalf("foreign transaction was deleted: %v", err)
	}
}

func TestLockUserUnknown(t *testing.T) {
	s := New()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.LockUser(ctx, "ghost")
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpsertBudgetKeepsIdentity(t *testing.T) {
	s := New()
	seedUser(t, s, "u1")
	ctx := context.Background()

	var first, second core.Budget
	_ = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		first, _ = tx.UpsertBudget(ctx, "u1", decimal.NewFromInt(100))
		return nil
	})
	_ = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		second, _ = tx.UpsertBudget(ctx, "u1", decimal.NewFromInt(250))
		return nil
	})
	if first.ID != second.ID {
		t.Fatal("budget upsert replaced the row")
	}
	b, _ := s.FindBudgetByUser(ctx, "u1")
	if b == nil || !b.Amount.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("unexpected budget %+v", b)
	}
	if b, _ := s.FindBudgetByUser(ctx, "u2"); b != nil {
		t.Fatal("expected nil budget for unknown user")
	}
}
