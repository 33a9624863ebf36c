package budget

import (
	"testing"

	"github.com/shopspring/decimal"
)

func ptr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestPercentUsed(t *testing.T) {
	cases := []struct {
		name    string
		budget  *decimal.Decimal
		spent   string
		percent string
		tier    Tier
		over    bool
	}{
		{"warning", ptr("200"), "150", "75", TierWarning, false},
		{"over budget is not clamped", ptr("200"), "260", "130", TierCritical, true},
		{"critical boundary", ptr("200"), "180", "90", TierCritical, false},
		{"just under warning", ptr("200"), "149.98", "74.99", TierNormal, false},
		{"nothing spent", ptr("500"), "0", "0", TierNormal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := PercentUsed(tc.budget, decimal.RequireFromString(tc.spent))
			if !u.Set {
				t.Fatal("expected a set budget")
			}
			if !u.Percent.Equal(decimal.RequireFromString(tc.percent)) {
				t.Errorf("percent = %s, want %s", u.Percent, tc.percent)
			}
			if u.Tier != tc.tier {
				t.Errorf("tier = %s, want %s", u.Tier, tc.tier)
			}
			if u.OverBudget() != tc.over {
				t.Errorf("over = %v, want %v", u.OverBudget(), tc.over)
			}
		})
	}
}

func TestPercentUsedWithoutBudget(t *testing.T) {
	u := PercentUsed(nil, decimal.NewFromInt(150))
	if u.Set {
		t.Fatal("nil budget must yield the no-budget variant")
	}
	if u.Tier != TierNone {
		t.Fatalf("expected TierNone, got %s", u.Tier)
	}
	if u.OverBudget() || !u.Remaining().IsZero() {
		t.Fatal("no-budget usage is never over budget")
	}
}

func TestRemaining(t *testing.T) {
	u := PercentUsed(ptr("200"), decimal.NewFromInt(260))
	if !u.Remaining().Equal(decimal.NewFromInt(-60)) {
		t.Fatalf("expected -60, got %s", u.Remaining())
	}
}
