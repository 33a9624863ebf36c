package postgres

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"testing"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger"

	"github.com/shopspring/decimal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("BUDGETAPP_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BUDGETAPP_TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/db":   "pgx5://u:p@localhost:5432/db",
		"postgresql://u:p@localhost:5432/db": "pgx5://u:p@localhost:5432/db",
		"pgx5://localhost/db":                "pgx5://localhost/db",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrationsKeepFullPrecision(t *testing.T) {
	scaled := regexp.MustCompile(`(?i)NUMERIC\s*\(`)
	files, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil || len(files) == 0 {
		t.Fatalf("no migrations: %v", err)
	}
	for _, name := range files {
		body, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			t.Fatal(err)
		}
		if loc := scaled.FindIndex(body); loc != nil {
			t.Errorf("%s declares a fixed precision NUMERIC at byte %d", name, loc[0])
		}
	}
}

func TestStoreLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := ledger.NewID()

	var acct core.Account
	err := s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.UpsertUser(ctx, core.User{ID: userID, Email: "pg@example.com"}); err != nil {
			return err
		}
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		var err error
		acct, err = tx.CreateAccountRecord(ctx, core.Account{
			UserID: userID, Name: "Main", Type: core.AccountCurrent,
			Balance: decimal.RequireFromString("1.005"), IsDefault: true,
		})
		if err != nil {
			return err
		}
		_, err = tx.CreateTransactionRecord(ctx, core.Transaction{
			UserID: userID, AccountID: acct.ID, Type: core.Expense,
			Amount: decimal.RequireFromString("0.0000000001"), Category: "food", Date: time.Now(),
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.FindAccount(ctx, acct.ID)
	if err != nil || !got.Balance.Equal(decimal.RequireFromString("1.005")) {
		t.Fatalf("find account: %+v %v", got, err)
	}
	txs, err := s.FindTransactionsByAccount(ctx, acct.ID)
	if err != nil || len(txs) != 1 || !txs[0].Amount.Equal(decimal.RequireFromString("0.0000000001")) {
		t.Fatalf("find transactions: %+v %v", txs, err)
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.CreateAccountRecord(ctx, core.Account{UserID: userID, Name: "Second", Type: core.AccountSavings, IsDefault: true})
		return err
	})
	if !errors.Is(err, ledger.ErrDuplicateDefault) {
		t.Fatalf("expected ErrDuplicateDefault, got %v", err)
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
