// Package ledger defines the storage contract the services depend on.
//
// Structural writes always go through Store.WithTx: the callback receives a
// Tx whose writes are committed together when the callback returns nil and
// discarded entirely otherwise. Readers outside a transaction only ever see
// committed state.
package ledger

import (
	"context"

	"budgetapp/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type (
	Reader interface {
		FindUser(ctx context.Context, userID string) (core.User, error)
		// FindAccountsByUser returns the user's accounts, newest first.
		FindAccountsByUser(ctx context.Context, userID string) ([]core.Account, error)
		FindAccount(ctx context.Context, accountID string) (core.Account, error)
		// CountTransactionsByAccount maps account id to transaction count; accounts
		// without transactions are absent.
		CountTransactionsByAccount(ctx context.Context, userID string) (map[string]int, error)
		// FindTransactionsByUser returns the user's transactions in creation order.
		FindTransactionsByUser(ctx context.Context, userID string) ([]core.Transaction, error)
		FindTransactionsByAccount(ctx context.Context, accountID string) ([]core.Transaction, error)
		FindTransaction(ctx context.Context, transactionID string) (core.Transaction, error)
		// FindBudgetByUser returns nil when the user has no budget.
		FindBudgetByUser(ctx context.Context, userID string) (*core.Budget, error)
	}

	Tx interface {
		Reader

		// LockUser serializes structural writes for one user. It fails with a
		// *core.NotFoundError when the user does not exist.
		LockUser(ctx context.Context, userID string) error
		UpsertUser(ctx context.Context, u core.User) (core.User, error)

		CreateAccountRecord(ctx context.Context, a core.Account) (core.Account, error)
		UpdateAccountRecord(ctx context.Context, accountID string, patch core.AccountPatch) (core.Account, error)
		// ClearDefaultAccounts unsets isDefault on every account of userID except exceptID.
		ClearDefaultAccounts(ctx context.Context, userID, exceptID string) error
		DeleteAccountRecord(ctx context.Context, accountID string) error

		DeleteTransactionsByAccount(ctx context.Context, accountID string) (int, error)
		CreateTransactionRecord(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// DeleteTransactionRecords removes the listed transactions owned by userID
		// and reports how many were removed.
		DeleteTransactionRecords(ctx context.Context, userID string, ids []string) (int, error)

		UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal) (core.Budget, error)
	}

	Store interface {
		Reader
		WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
		Close() error
	}
)

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}
