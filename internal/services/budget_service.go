package services

import (
	"context"
	"time"

	"budgetapp/internal/aggregate"
	"budgetapp/internal/amqp"
	"budgetapp/internal/budget"
	"budgetapp/internal/core"
	"budgetapp/internal/ledger"
	applog "budgetapp/internal/log"

	"github.com/shopspring/decimal"
)

type BudgetService struct {
	store  ledger.Store
	events EventPublisher
}

func NewBudgetService(store ledger.Store, events EventPublisher) *BudgetService {
	return &BudgetService{store: store, events: events}
}

// BudgetStatus is the user's budget measured against one account's
// expenses in the current month. Budget is nil when none is set.
type BudgetStatus struct {
	Budget   *core.Budget
	Expenses decimal.Decimal
	Usage    budget.Usage
}

// SetBudget creates or replaces the user's monthly budget. The amount must
// be strictly positive.
func (s *BudgetService) SetBudget(ctx context.Context, userID string, amount any) (core.Budget, error) {
	value, err := core.FromWire(amount)
	if err != nil {
		return core.Budget{}, err
	}
	if err := (core.Budget{UserID: userID, Amount: value}).Validate(); err != nil {
		return core.Budget{}, err
	}

	var saved core.Budget
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		var err error
		saved, err = tx.UpsertBudget(ctx, userID, value)
		return err
	})
	if err != nil {
		err = core.AsConsistencyFailure("updateBudget", err)
		applog.ForComponent(applog.ComponentBudget).Failure(ctx, "Failed to update budget", err,
			applog.NewFields().WithUser(userID, "").WithOperation(applog.OpUpdate))
		return core.Budget{}, err
	}

	applog.ForComponent(applog.ComponentBudget).InfoContext(ctx, "Budget updated",
		applog.FieldUserID, userID,
		applog.FieldAmount, saved.Amount.String())

	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.BudgetUpdated, userID, ""))
	return saved, nil
}

// CurrentBudget reports the budget against accountID's expenses for the
// calendar month containing now.
func (s *BudgetService) CurrentBudget(ctx context.Context, userID, accountID string, now time.Time) (BudgetStatus, error) {
	if _, err := ownedAccount(ctx, s.store, userID, accountID); err != nil {
		return BudgetStatus{}, err
	}
	b, err := s.store.FindBudgetByUser(ctx, userID)
	if err != nil {
		return BudgetStatus{}, err
	}
	txs, err := s.store.FindTransactionsByAccount(ctx, accountID)
	if err != nil {
		return BudgetStatus{}, err
	}
	return budgetStatus(b, txs, now)
}

func budgetStatus(b *core.Budget, txs []core.Transaction, now time.Time) (BudgetStatus, error) {
	spent, err := aggregate.MonthExpenseTotal(txs, now)
	if err != nil {
		return BudgetStatus{}, err
	}
	var amount *decimal.Decimal
	if b != nil {
		amount = &b.Amount
	}
	return BudgetStatus{Budget: b, Expenses: spent, Usage: budget.PercentUsed(amount, spent)}, nil
}
