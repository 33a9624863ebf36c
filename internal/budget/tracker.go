// Package budget computes how much of a monthly budget has been used.
package budget

import (
	"github.com/shopspring/decimal"
)

// Tier classifies budget usage for presentation and alerting.
type Tier string

const (
	TierNone     Tier = "none" // no budget set
	TierNormal   Tier = "normal"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
)

var (
	hundred           = decimal.NewFromInt(100)
	warningThreshold  = decimal.NewFromInt(75)
	criticalThreshold = decimal.NewFromInt(90)
)

// Usage is the result of PercentUsed. When Set is false no budget exists and
// Percent is meaningless; it is not the same as 0% used.
type Usage struct {
	Set     bool
	Budget  decimal.Decimal
	Spent   decimal.Decimal
	Percent decimal.Decimal // unbounded above 100
	Tier    Tier
}

// PercentUsed returns spent as a percentage of budgetAmount. A nil budget
// yields the "no budget set" usage. budgetAmount must be positive; that is
// enforced when the budget is written.
func PercentUsed(budgetAmount *decimal.Decimal, spent decimal.Decimal) Usage {
	if budgetAmount == nil {
		return Usage{Spent: spent, Tier: TierNone}
	}
	pct := spent.Div(*budgetAmount).Mul(hundred)
	return Usage{
		Set:     true,
		Budget:  *budgetAmount,
		Spent:   spent,
		Percent: pct,
		Tier:    TierFor(pct),
	}
}

// TierFor maps a percentage to its tier: >= 90 critical, >= 75 warning.
func TierFor(percent decimal.Decimal) Tier {
	switch {
	case percent.GreaterThanOrEqual(criticalThreshold):
		return TierCritical
	case percent.GreaterThanOrEqual(warningThreshold):
		return TierWarning
	default:
		return TierNormal
	}
}

// Remaining is the unspent part of the budget; negative when over budget.
func (u Usage) Remaining() decimal.Decimal {
	if !u.Set {
		return decimal.Zero
	}
	return u.Budget.Sub(u.Spent)
}

// OverBudget reports whether spending exceeded the budget.
func (u Usage) OverBudget() bool {
	return u.Set && u.Spent.GreaterThan(u.Budget)
}
