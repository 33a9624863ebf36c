package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"budgetapp/internal/aggregate"
	"budgetapp/internal/amqp"
	"budgetapp/internal/core"
	"budgetapp/internal/ledger"
	applog "budgetapp/internal/log"
)

// AccountService keeps exactly one default account per user with accounts.
// Every structural change runs in one ledger transaction after LockUser, so
// overlapping calls for the same user serialize and readers only ever see
// committed states.
type AccountService struct {
	store  ledger.Store
	events EventPublisher
}

func NewAccountService(store ledger.Store, events EventPublisher) *AccountService {
	return &AccountService{store: store, events: events}
}

// CreateAccountInput carries the raw balance as received on the wire.
type CreateAccountInput struct {
	UserID    string
	Name      string
	Type      core.AccountType
	Balance   any
	IsDefault bool
}

// AccountSummary pairs an account with its transaction count.
type AccountSummary struct {
	Account          core.Account
	TransactionCount int
}

// AccountDetail is an account with its transactions in creation order.
type AccountDetail struct {
	Account      core.Account
	Transactions []core.Transaction
}

func (s *AccountService) logger() *applog.Logger {
	return applog.ForComponent(applog.ComponentAccounts)
}

// CreateAccount creates an account. The user's first account is always the
// default; requesting default on a later one clears the previous default in
// the same transaction.
func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (core.Account, error) {
	balance, err := core.FromWire(in.Balance)
	if err != nil {
		return core.Account{}, core.NewValidationError("balance", errors.Unwrap(err))
	}
	draft := core.Account{
		UserID:    in.UserID,
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Balance:   balance,
		IsDefault: in.IsDefault,
	}
	if err := draft.Validate(); err != nil {
		return core.Account{}, err
	}

	var created core.Account
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.LockUser(ctx, in.UserID); err != nil {
			return err
		}
		existing, err := tx.FindAccountsByUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		draft.IsDefault = len(existing) == 0 || in.IsDefault
		if draft.IsDefault && len(existing) > 0 {
			if err := tx.ClearDefaultAccounts(ctx, in.UserID, ""); err != nil {
				return err
			}
		}
		created, err = tx.CreateAccountRecord(ctx, draft)
		return err
	})
	if err != nil {
		err = core.AsConsistencyFailure("createAccount", err)
		s.logger().Failure(ctx, "Failed to create account", err, applog.NewFields().
			WithUser(in.UserID, "").WithOperation(applog.OpCreate))
		return core.Account{}, err
	}

	s.logger().InfoContext(ctx, "Account created",
		applog.FieldUserID, created.UserID,
		applog.FieldAccountID, created.ID,
		applog.FieldAccountType, created.Type,
		applog.FieldIsDefault, created.IsDefault)

	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.AccountCreated, created.UserID, created.ID))
	return created, nil
}

// DeleteAccount removes the account and all its transactions atomically.
// The default is not reassigned when the deleted account was the default.
func (s *AccountService) DeleteAccount(ctx context.Context, userID, accountID string) error {
	var removed int
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		if _, err := ownedAccount(ctx, tx, userID, accountID); err != nil {
			return err
		}
		var err error
		if removed, err = tx.DeleteTransactionsByAccount(ctx, accountID); err != nil {
			return err
		}
		return tx.DeleteAccountRecord(ctx, accountID)
	})
	if err != nil {
		err = core.AsConsistencyFailure("deleteAccount", err)
		s.logger().Failure(ctx, "Failed to delete account", err, applog.NewFields().
			WithUser(userID, accountID).WithOperation(applog.OpDelete))
		return err
	}

	s.logger().InfoContext(ctx, "Account deleted",
		applog.FieldUserID, userID,
		applog.FieldAccountID, accountID,
		applog.FieldCount, removed)

	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.AccountDeleted, userID, accountID))
	return nil
}

// SetDefaultAccount makes accountID the user's only default. Calling it on
// the current default changes nothing.
func (s *AccountService) SetDefaultAccount(ctx context.Context, userID, accountID string) (core.Account, error) {
	var (
		result  core.Account
		changed bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		acct, err := ownedAccount(ctx, tx, userID, accountID)
		if err != nil {
			return err
		}
		if acct.IsDefault {
			result = acct
			return nil
		}
		if err := tx.ClearDefaultAccounts(ctx, userID, accountID); err != nil {
			return err
		}
		isDefault := true
		result, err = tx.UpdateAccountRecord(ctx, accountID, core.AccountPatch{IsDefault: &isDefault})
		changed = err == nil
		return err
	})
	if err != nil {
		err = core.AsConsistencyFailure("setDefaultAccount", err)
		s.logger().Failure(ctx, "Failed to set default account", err, applog.NewFields().
			WithUser(userID, accountID).WithOperation(applog.OpSetDefault))
		return core.Account{}, err
	}

	if changed {
		s.logger().InfoContext(ctx, "Default account changed",
			applog.FieldUserID, userID,
			applog.FieldAccountID, accountID)
		publish(ctx, s.events, amqp.NewLedgerEvent(amqp.AccountDefaultChanged, userID, accountID))
	}
	return result, nil
}

// ListAccounts returns the user's accounts, newest first, with transaction counts.
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]AccountSummary, error) {
	if _, err := s.store.FindUser(ctx, userID); err != nil {
		return nil, err
	}
	accounts, err := s.store.FindAccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountTransactionsByAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]AccountSummary, len(accounts))
	for i, a := range accounts {
		out[i] = AccountSummary{Account: a, TransactionCount: counts[a.ID]}
	}
	return out, nil
}

// GetAccountWithTransactions returns one of the user's accounts and its transactions.
func (s *AccountService) GetAccountWithTransactions(ctx context.Context, userID, accountID string) (AccountDetail, error) {
	acct, err := ownedAccount(ctx, s.store, userID, accountID)
	if err != nil {
		return AccountDetail{}, err
	}
	txs, err := s.store.FindTransactionsByAccount(ctx, accountID)
	if err != nil {
		return AccountDetail{}, err
	}
	return AccountDetail{Account: acct, Transactions: txs}, nil
}

// AccountView is the account detail page: chart over a named range plus a
// filtered, sorted table.
type AccountView struct {
	Detail AccountDetail
	Chart  aggregate.ChartData
	Table  []core.Transaction
}

// ViewQuery selects chart range and table presentation. The table defaults
// to newest first.
type ViewQuery struct {
	Range     aggregate.DateRange
	Filter    aggregate.TableFilter
	SortField aggregate.SortField
	Direction aggregate.Direction
}

// ViewAccount loads an account and derives its chart and table.
func (s *AccountService) ViewAccount(ctx context.Context, userID, accountID string, q ViewQuery, now time.Time) (AccountView, error) {
	detail, err := s.GetAccountWithTransactions(ctx, userID, accountID)
	if err != nil {
		return AccountView{}, err
	}
	if q.Range.Key == "" {
		q.Range = aggregate.DefaultRange
	}
	chart, err := aggregate.Chart(detail.Transactions, q.Range, now)
	if err != nil {
		return AccountView{}, err
	}
	if q.SortField == "" {
		q.SortField = aggregate.SortByDate
	}
	if q.Direction == "" {
		q.Direction = aggregate.Desc
	}
	table, err := aggregate.SortBy(aggregate.Filter(detail.Transactions, q.Filter), q.SortField, q.Direction)
	if err != nil {
		return AccountView{}, err
	}
	return AccountView{Detail: detail, Chart: chart, Table: table}, nil
}

// ownedAccount hides other users' accounts behind the same NotFoundError as
// missing ones.
func ownedAccount(ctx context.Context, r ledger.Reader, userID, accountID string) (core.Account, error) {
	acct, err := r.FindAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, err
	}
	if acct.UserID != userID {
		return core.Account{}, core.NewNotFoundError("account", accountID)
	}
	return acct, nil
}
