// Package aggregate derives summaries from an in-memory set of transactions.
//
// Every function here is pure: inputs are never mutated, nothing is cached,
// and no I/O happens. Malformed input (a zero date, an unknown category or
// transaction type) fails fast instead of producing zeroed buckets.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"budgetapp/internal/core"

	"github.com/shopspring/decimal"
)

const dayKeyLayout = "2006-01-02"

// DayLabelLayout formats bucket labels ("Jan 02").
const DayLabelLayout = "Jan 02"

type (
	// DayBucket holds the income and expense sums of one calendar day.
	DayBucket struct {
		Key     string    // 2006-01-02, unique across years
		Label   string    // "Jan 02", for display
		Day     time.Time // midnight of the bucket day
		Income  decimal.Decimal
		Expense decimal.Decimal
	}

	Totals struct {
		Income  decimal.Decimal
		Expense decimal.Decimal
		Net     decimal.Decimal
	}

	// CategoryAmount is one slice of a category breakdown.
	CategoryAmount struct {
		Category core.Category
		Amount   decimal.Decimal
	}

	ChartData struct {
		Range   DateRange
		Buckets []DayBucket
		Totals  Totals
	}

	SortField string
	Direction string
)

const (
	SortByDate     SortField = "date"
	SortByAmount   SortField = "amount"
	SortByCategory SortField = "category"

	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// FilterByRange keeps transactions dated within
// [startOfDay(start), endOfDay(end)]. A nil start means unbounded.
func FilterByRange(txs []core.Transaction, start *time.Time, end time.Time) ([]core.Transaction, error) {
	if err := checkTransactions(txs); err != nil {
		return nil, err
	}
	upper := endOfDay(end)
	var lower time.Time
	if start != nil {
		lower = startOfDay(*start)
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if start != nil && tx.Date.Before(lower) {
			continue
		}
		if tx.Date.After(upper) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// BucketByDay groups transactions by calendar day in loc (UTC when nil).
// The result is ordered by ascending day.
func BucketByDay(txs []core.Transaction, loc *time.Location) ([]DayBucket, error) {
	if err := checkTransactions(txs); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	byKey := make(map[string]*DayBucket)
	for _, tx := range txs {
		day := startOfDay(tx.Date.In(loc))
		key := day.Format(dayKeyLayout)
		b, ok := byKey[key]
		if !ok {
			b = &DayBucket{Key: key, Label: day.Format(DayLabelLayout), Day: day}
			byKey[key] = b
		}
		if tx.Type == core.Income {
			b.Income = b.Income.Add(tx.Amount)
		} else {
			b.Expense = b.Expense.Add(tx.Amount)
		}
	}
	out := make([]DayBucket, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b DayBucket) int { return a.Day.Compare(b.Day) })
	return out, nil
}

// SumBuckets totals a bucket series; Net is Income minus Expense.
func SumBuckets(buckets []DayBucket) Totals {
	var t Totals
	for _, b := range buckets {
		t.Income = t.Income.Add(b.Income)
		t.Expense = t.Expense.Add(b.Expense)
	}
	t.Net = t.Income.Sub(t.Expense)
	return t
}

// GroupByCategory sums EXPENSE amounts per category for the calendar month
// containing now (in now's location). Categories without matching
// transactions are absent from the result.
func GroupByCategory(txs []core.Transaction, now time.Time) (map[string]decimal.Decimal, error) {
	if err := checkTransactions(txs); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if tx.Type != core.Expense || !sameMonth(tx.Date, now) {
			continue
		}
		if _, ok := core.LookupCategory(tx.Category); !ok {
			return nil, core.NewValidationError("category", fmt.Errorf("%w: %q", core.ErrUnknownCategory, tx.Category))
		}
		out[tx.Category] = out[tx.Category].Add(tx.Amount)
	}
	return out, nil
}

// Breakdown orders a GroupByCategory result by amount, largest first, with
// catalog order breaking ties.
func Breakdown(groups map[string]decimal.Decimal) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(groups))
	for _, c := range core.Categories() {
		if amt, ok := groups[c.ID]; ok {
			out = append(out, CategoryAmount{Category: c, Amount: amt})
		}
	}
	slices.SortStableFunc(out, func(a, b CategoryAmount) int { return b.Amount.Cmp(a.Amount) })
	return out
}

// MonthExpenseTotal sums EXPENSE amounts dated in the month containing now.
func MonthExpenseTotal(txs []core.Transaction, now time.Time) (decimal.Decimal, error) {
	if err := checkTransactions(txs); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type == core.Expense && sameMonth(tx.Date, now) {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

// RecentN returns the n most recent transactions, newest first. Transactions
// sharing a date keep their input (creation) order.
func RecentN(txs []core.Transaction, n int) []core.Transaction {
	if n <= 0 {
		return []core.Transaction{}
	}
	out := slices.Clone(txs)
	slices.SortStableFunc(out, func(a, b core.Transaction) int { return b.Date.Compare(a.Date) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// SortBy returns a stably sorted copy of txs.
func SortBy(txs []core.Transaction, field SortField, dir Direction) ([]core.Transaction, error) {
	var compare func(a, b core.Transaction) int
	switch field {
	case SortByDate:
		compare = func(a, b core.Transaction) int { return a.Date.Compare(b.Date) }
	case SortByAmount:
		compare = func(a, b core.Transaction) int { return a.Amount.Cmp(b.Amount) }
	case SortByCategory:
		compare = func(a, b core.Transaction) int { return cmp.Compare(a.Category, b.Category) }
	default:
		return nil, core.NewValidationError("sort", fmt.Errorf("unknown sort field %q", field))
	}
	switch dir {
	case Asc:
	case Desc:
		asc := compare
		compare = func(a, b core.Transaction) int { return -asc(a, b) }
	default:
		return nil, core.NewValidationError("direction", fmt.Errorf("unknown sort direction %q", dir))
	}
	out := slices.Clone(txs)
	slices.SortStableFunc(out, compare)
	return out, nil
}

// Chart filters txs to r relative to now and buckets the rest by day in
// now's location.
func Chart(txs []core.Transaction, r DateRange, now time.Time) (ChartData, error) {
	start, end := r.Bounds(now)
	filtered, err := FilterByRange(txs, start, end)
	if err != nil {
		return ChartData{}, err
	}
	buckets, err := BucketByDay(filtered, now.Location())
	if err != nil {
		return ChartData{}, err
	}
	return ChartData{Range: r, Buckets: buckets, Totals: SumBuckets(buckets)}, nil
}

// RecurringFilter selects recurring or one-off transactions; empty keeps both.
type RecurringFilter string

const (
	RecurringOnly    RecurringFilter = "recurring"
	NonRecurringOnly RecurringFilter = "non-recurring"
)

// TableFilter narrows a transaction listing. Zero fields match everything.
type TableFilter struct {
	Search    string // case-insensitive substring of the description
	Type      core.TransactionType
	Recurring RecurringFilter
}

// Filter applies f and preserves input order.
func Filter(txs []core.Transaction, f TableFilter) []core.Transaction {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if search != "" && !strings.Contains(strings.ToLower(tx.Description), search) {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		switch f.Recurring {
		case RecurringOnly:
			if !tx.IsRecurring {
				continue
			}
		case NonRecurringOnly:
			if tx.IsRecurring {
				continue
			}
		}
		out = append(out, tx)
	}
	return out
}

func sameMonth(t, now time.Time) bool {
	t = t.In(now.Location())
	return t.Year() == now.Year() && t.Month() == now.Month()
}

func checkTransactions(txs []core.Transaction) error {
	for _, tx := range txs {
		if tx.Date.IsZero() {
			return core.NewValidationError("date", fmt.Errorf("%w: transaction %q", core.ErrMissingDate, tx.ID))
		}
		if !tx.Type.IsValid() {
			return core.NewValidationError("type", fmt.Errorf("%w: transaction %q", core.ErrInvalidTransactionType, tx.ID))
		}
	}
	return nil
}
