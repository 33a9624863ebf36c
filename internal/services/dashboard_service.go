package services

import (
	"context"
	"time"

	"budgetapp/internal/aggregate"
	"budgetapp/internal/core"
	"budgetapp/internal/ledger"

	"golang.org/x/sync/errgroup"
)

// RecentLimit is how many transactions the dashboard lists.
const RecentLimit = 5

type DashboardService struct {
	store ledger.Store
}

func NewDashboardService(store ledger.Store) *DashboardService {
	return &DashboardService{store: store}
}

// Dashboard is the overview of one user's ledger.
//
// Selected is the default account, or the newest account when no default
// exists. Budget is measured against the default account only and is nil
// when the user has no default account.
type Dashboard struct {
	Accounts   []AccountSummary
	Default    *core.Account
	Selected   *core.Account
	Recent     []core.Transaction
	Breakdown  []aggregate.CategoryAmount
	MonthTotal aggregate.Totals
	Budget     *BudgetStatus
}

// Dashboard reads accounts, transactions and budget concurrently and derives
// the overview for the month containing now.
func (s *DashboardService) Dashboard(ctx context.Context, userID string, now time.Time) (Dashboard, error) {
	if _, err := s.store.FindUser(ctx, userID); err != nil {
		return Dashboard{}, err
	}

	var (
		accounts []core.Account
		counts   map[string]int
		txs      []core.Transaction
		b        *core.Budget
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = s.store.FindAccountsByUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.store.CountTransactionsByAccount(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = s.store.FindTransactionsByUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		b, err = s.store.FindBudgetByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{Accounts: make([]AccountSummary, len(accounts)), Recent: []core.Transaction{}, Breakdown: []aggregate.CategoryAmount{}}
	for i, a := range accounts {
		d.Accounts[i] = AccountSummary{Account: a, TransactionCount: counts[a.ID]}
		if a.IsDefault && d.Default == nil {
			acct := a
			d.Default = &acct
		}
	}
	d.Selected = d.Default
	if d.Selected == nil && len(accounts) > 0 {
		acct := accounts[0]
		d.Selected = &acct
	}
	if d.Selected == nil {
		return d, nil
	}

	selectedTxs := byAccount(txs, d.Selected.ID)
	d.Recent = aggregate.RecentN(selectedTxs, RecentLimit)

	groups, err := aggregate.GroupByCategory(selectedTxs, now)
	if err != nil {
		return Dashboard{}, err
	}
	d.Breakdown = aggregate.Breakdown(groups)

	start, end := aggregate.MonthBounds(now)
	month, err := aggregate.FilterByRange(selectedTxs, &start, end)
	if err != nil {
		return Dashboard{}, err
	}
	buckets, err := aggregate.BucketByDay(month, now.Location())
	if err != nil {
		return Dashboard{}, err
	}
	d.MonthTotal = aggregate.SumBuckets(buckets)

	if d.Default != nil {
		status, err := budgetStatus(b, byAccount(txs, d.Default.ID), now)
		if err != nil {
			return Dashboard{}, err
		}
		d.Budget = &status
	}
	return d, nil
}

func byAccount(txs []core.Transaction, accountID string) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out
}
