package services

import (
	"context"
	"strings"
	"time"

	"budgetapp/internal/amqp"
	"budgetapp/internal/core"
	"budgetapp/internal/ledger"
	applog "budgetapp/internal/log"
)

type TransactionService struct {
	store  ledger.Store
	events EventPublisher
}

func NewTransactionService(store ledger.Store, events EventPublisher) *TransactionService {
	return &TransactionService{store: store, events: events}
}

// CreateTransactionInput carries the raw amount as received on the wire.
type CreateTransactionInput struct {
	UserID            string
	AccountID         string
	Type              core.TransactionType
	Amount            any
	Category          string
	Date              time.Time
	Description       string
	IsRecurring       bool
	RecurringInterval core.RecurringInterval
}

func (s *TransactionService) logger() *applog.Logger {
	return applog.ForComponent(applog.ComponentTransactions)
}

// CreateTransaction records a transaction on one of the user's accounts.
// Recurring transactions get their next occurrence one interval after Date.
// The account balance is left untouched.
func (s *TransactionService) CreateTransaction(ctx context.Context, in CreateTransactionInput) (core.Transaction, error) {
	amount, err := core.FromWire(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	draft := core.Transaction{
		UserID:            in.UserID,
		AccountID:         in.AccountID,
		Type:              in.Type,
		Amount:            amount,
		Category:          in.Category,
		Date:              in.Date,
		Description:       strings.TrimSpace(in.Description),
		IsRecurring:       in.IsRecurring,
		RecurringInterval: in.RecurringInterval,
	}
	if draft.IsRecurring && draft.RecurringInterval.IsValid() {
		next := draft.RecurringInterval.Next(draft.Date)
		draft.NextRecurringDate = &next
	}
	if err := draft.Validate(); err != nil {
		return core.Transaction{}, err
	}

	var created core.Transaction
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := ownedAccount(ctx, tx, in.UserID, in.AccountID); err != nil {
			return err
		}
		created, err = tx.CreateTransactionRecord(ctx, draft)
		return err
	})
	if err != nil {
		err = core.AsConsistencyFailure("createTransaction", err)
		s.logger().Failure(ctx, "Failed to create transaction", err, applog.NewFields().
			WithUser(in.UserID, in.AccountID).WithOperation(applog.OpCreate))
		return core.Transaction{}, err
	}

	s.logger().InfoContext(ctx, "Transaction created",
		applog.FieldUserID, created.UserID,
		applog.FieldAccountID, created.AccountID,
		applog.FieldTransactionID, created.ID,
		applog.FieldTxType, created.Type,
		applog.FieldCategory, created.Category,
		applog.FieldAmount, created.Amount.String())

	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.TransactionCreated, created.UserID, created.AccountID, created.ID))
	return created, nil
}

// BulkDeleteTransactions removes the listed transactions that belong to
// userID and reports how many were removed. Ids of other users are ignored.
func (s *TransactionService) BulkDeleteTransactions(ctx context.Context, userID string, ids []string) (int, error) {
	if userID == "" {
		return 0, core.NewValidationError("userId", core.ErrEmptyUserID)
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var removed int
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		var err error
		removed, err = tx.DeleteTransactionRecords(ctx, userID, ids)
		return err
	})
	if err != nil {
		err = core.AsConsistencyFailure("bulkDeleteTransactions", err)
		s.logger().Failure(ctx, "Failed to delete transactions", err, applog.NewFields().
			WithUser(userID, "").WithOperation(applog.OpBulkDelete))
		return 0, err
	}

	s.logger().InfoContext(ctx, "Transactions deleted",
		applog.FieldUserID, userID,
		applog.FieldCount, removed)

	if removed > 0 {
		publish(ctx, s.events, amqp.NewLedgerEvent(amqp.TransactionsDeleted, userID, "", ids...))
	}
	return removed, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
