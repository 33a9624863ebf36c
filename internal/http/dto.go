package http

import (
	"time"

	"budgetapp/internal/aggregate"
	"budgetapp/internal/budget"
	"budgetapp/internal/core"
	"budgetapp/internal/services"
)

// Wire shapes. Money is always a plain JSON number.
type (
	userDTO struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		Name      string    `json:"name"`
		ImageURL  string    `json:"imageUrl,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	accountDTO struct {
		ID               string         `json:"id"`
		Name             string         `json:"name"`
		Type             string         `json:"type"`
		Balance          core.WireMoney `json:"balance"`
		IsDefault        bool           `json:"isDefault"`
		TransactionCount *int           `json:"transactionCount,omitempty"`
		CreatedAt        time.Time      `json:"createdAt"`
		UpdatedAt        time.Time      `json:"updatedAt"`
	}

	transactionDTO struct {
		ID                string         `json:"id"`
		AccountID         string         `json:"accountId"`
		Type              string         `json:"type"`
		Amount            core.WireMoney `json:"amount"`
		Category          string         `json:"category"`
		Description       string         `json:"description,omitempty"`
		Date              time.Time      `json:"date"`
		IsRecurring       bool           `json:"isRecurring"`
		RecurringInterval string         `json:"recurringInterval,omitempty"`
		NextRecurringDate *time.Time     `json:"nextRecurringDate,omitempty"`
		CreatedAt         time.Time      `json:"createdAt"`
	}

	bucketDTO struct {
		Key     string         `json:"key"`
		Label   string         `json:"label"`
		Income  core.WireMoney `json:"income"`
		Expense core.WireMoney `json:"expense"`
	}

	totalsDTO struct {
		Income  core.WireMoney `json:"income"`
		Expense core.WireMoney `json:"expense"`
		Net     core.WireMoney `json:"net"`
	}

	chartDTO struct {
		Range   string      `json:"range"`
		Label   string      `json:"label"`
		Buckets []bucketDTO `json:"buckets"`
		Totals  totalsDTO   `json:"totals"`
	}

	accountViewDTO struct {
		Account      accountDTO       `json:"account"`
		Transactions []transactionDTO `json:"transactions"`
		Chart        chartDTO         `json:"chart"`
	}

	budgetDTO struct {
		ID        string         `json:"id"`
		Amount    core.WireMoney `json:"amount"`
		UpdatedAt time.Time      `json:"updatedAt"`
	}

	usageDTO struct {
		Set        bool            `json:"set"`
		Percent    *core.WireMoney `json:"percent,omitempty"`
		Remaining  *core.WireMoney `json:"remaining,omitempty"`
		OverBudget bool            `json:"overBudget"`
		Tier       budget.Tier     `json:"tier"`
	}

	categoryDTO struct {
		ID            string   `json:"id"`
		Name          string   `json:"name"`
		Type          string   `json:"type"`
		Color         string   `json:"color"`
		Icon          string   `json:"icon"`
		Subcategories []string `json:"subcategories,omitempty"`
	}

	budgetStatusDTO struct {
		Budget   *budgetDTO     `json:"budget"`
		Expenses core.WireMoney `json:"currentExpenses"`
		Usage    usageDTO       `json:"usage"`
	}

	categoryAmountDTO struct {
		Category string         `json:"category"`
		Name     string         `json:"name"`
		Color    string         `json:"color"`
		Amount   core.WireMoney `json:"amount"`
	}

	dashboardDTO struct {
		Accounts         []accountDTO        `json:"accounts"`
		DefaultAccountID string              `json:"defaultAccountId,omitempty"`
		SelectedID       string              `json:"selectedAccountId,omitempty"`
		Recent           []transactionDTO    `json:"recentTransactions"`
		Breakdown        []categoryAmountDTO `json:"categoryBreakdown"`
		MonthTotal       totalsDTO           `json:"monthTotal"`
		Budget           *budgetStatusDTO    `json:"budget"`
	}
)

func toUserDTO(u core.User) userDTO {
	return userDTO{ID: u.ID, Email: u.Email, Name: u.Name, ImageURL: u.ImageURL, CreatedAt: u.CreatedAt}
}

func toAccountDTO(a core.Account) accountDTO {
	return accountDTO{
		ID:        a.ID,
		Name:      a.Name,
		Type:      string(a.Type),
		Balance:   core.WireMoney{Decimal: a.Balance},
		IsDefault: a.IsDefault,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toSummaryDTO(s services.AccountSummary) accountDTO {
	dto := toAccountDTO(s.Account)
	n := s.TransactionCount
	dto.TransactionCount = &n
	return dto
}

func toTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:                t.ID,
		AccountID:         t.AccountID,
		Type:              string(t.Type),
		Amount:            core.WireMoney{Decimal: t.Amount},
		Category:          t.Category,
		Description:       t.Description,
		Date:              t.Date,
		IsRecurring:       t.IsRecurring,
		RecurringInterval: string(t.RecurringInterval),
		NextRecurringDate: t.NextRecurringDate,
		CreatedAt:         t.CreatedAt,
	}
}

func toTransactionDTOs(txs []core.Transaction) []transactionDTO {
	out := make([]transactionDTO, len(txs))
	for i, t := range txs {
		out[i] = toTransactionDTO(t)
	}
	return out
}

func toTotalsDTO(t aggregate.Totals) totalsDTO {
	return totalsDTO{
		Income:  core.WireMoney{Decimal: t.Income},
		Expense: core.WireMoney{Decimal: t.Expense},
		Net:     core.WireMoney{Decimal: t.Net},
	}
}

func toChartDTO(c aggregate.ChartData) chartDTO {
	buckets := make([]bucketDTO, len(c.Buckets))
	for i, b := range c.Buckets {
		buckets[i] = bucketDTO{
			Key:     b.Key,
			Label:   b.Label,
			Income:  core.WireMoney{Decimal: b.Income},
			Expense: core.WireMoney{Decimal: b.Expense},
		}
	}
	return chartDTO{Range: c.Range.Key, Label: c.Range.Label, Buckets: buckets, Totals: toTotalsDTO(c.Totals)}
}

func toAccountViewDTO(v services.AccountView) accountViewDTO {
	acct := toAccountDTO(v.Detail.Account)
	n := len(v.Detail.Transactions)
	acct.TransactionCount = &n
	return accountViewDTO{Account: acct, Transactions: toTransactionDTOs(v.Table), Chart: toChartDTO(v.Chart)}
}

func toBudgetDTO(b *core.Budget) *budgetDTO {
	if b == nil {
		return nil
	}
	return &budgetDTO{ID: b.ID, Amount: core.WireMoney{Decimal: b.Amount}, UpdatedAt: b.UpdatedAt}
}

func toBudgetStatusDTO(s services.BudgetStatus) budgetStatusDTO {
	usage := usageDTO{Set: s.Usage.Set, Tier: s.Usage.Tier, OverBudget: s.Usage.OverBudget()}
	if s.Usage.Set {
		usage.Percent = &core.WireMoney{Decimal: s.Usage.Percent}
		usage.Remaining = &core.WireMoney{Decimal: s.Usage.Remaining()}
	}
	return budgetStatusDTO{Budget: toBudgetDTO(s.Budget), Expenses: core.WireMoney{Decimal: s.Expenses}, Usage: usage}
}

func toCategoryDTO(c core.Category) categoryDTO {
	return categoryDTO{
		ID:            c.ID,
		Name:          c.Name,
		Type:          string(c.Type),
		Color:         c.Color,
		Icon:          c.Icon,
		Subcategories: c.Subcategories,
	}
}

func toDashboardDTO(d services.Dashboard) dashboardDTO {
	out := dashboardDTO{
		Accounts:   make([]accountDTO, len(d.Accounts)),
		Recent:     toTransactionDTOs(d.Recent),
		Breakdown:  make([]categoryAmountDTO, len(d.Breakdown)),
		MonthTotal: toTotalsDTO(d.MonthTotal),
	}
	for i, s := range d.Accounts {
		out.Accounts[i] = toSummaryDTO(s)
	}
	for i, c := range d.Breakdown {
		out.Breakdown[i] = categoryAmountDTO{
			Category: c.Category.ID,
			Name:     c.Category.Name,
			Color:    c.Category.Color,
			Amount:   core.WireMoney{Decimal: c.Amount},
		}
	}
	if d.Default != nil {
		out.DefaultAccountID = d.Default.ID
	}
	if d.Selected != nil {
		out.SelectedID = d.Selected.ID
	}
	if d.Budget != nil {
		status := toBudgetStatusDTO(*d.Budget)
		out.Budget = &status
	}
	return out
}
