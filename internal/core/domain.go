package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountCurrent AccountType = "CURRENT"
	AccountSavings AccountType = "SAVINGS"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	Daily   RecurringInterval = "DAILY"
	Weekly  RecurringInterval = "WEEKLY"
	Monthly RecurringInterval = "MONTHLY"
	Yearly  RecurringInterval = "YEARLY"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
)

type (
	AccountType       string
	TransactionType   string
	RecurringInterval string

	User struct {
		ID        string
		Email     string
		Name      string
		ImageURL  string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Account struct {
		ID        string
		UserID    string
		Name      string
		Type      AccountType
		Balance   decimal.Decimal // set independently, never derived from transactions
		IsDefault bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// AccountPatch carries the fields of an account update; nil means unchanged.
	AccountPatch struct {
		Name      *string
		Type      *AccountType
		Balance   *decimal.Decimal
		IsDefault *bool
	}

	Transaction struct {
		ID                string
		UserID            string
		AccountID         string
		Type              TransactionType
		Amount            decimal.Decimal // unsigned; the sign is carried by Type
		Category          string
		Date              time.Time
		Description       string
		IsRecurring       bool
		RecurringInterval RecurringInterval // empty unless IsRecurring
		NextRecurringDate *time.Time        // nil unless IsRecurring
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	Budget struct {
		ID        string
		UserID    string
		Amount    decimal.Decimal
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

func (t AccountType) IsValid() bool {
	switch t {
	case AccountCurrent, AccountSavings:
		return true
	}
	return false
}

func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense:
		return true
	}
	return false
}

func (i RecurringInterval) IsValid() bool {
	switch i {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Next returns the occurrence following from.
func (i RecurringInterval) Next(from time.Time) time.Time {
	switch i {
	case Daily:
		return from.AddDate(0, 0, 1)
	case Weekly:
		return from.AddDate(0, 0, 7)
	case Monthly:
		return from.AddDate(0, 1, 0)
	case Yearly:
		return from.AddDate(1, 0, 0)
	}
	return from
}

// ParseAccountType accepts any letter case.
func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", NewValidationError("type", ErrInvalidAccountType)
	}
	return t, nil
}

func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", NewValidationError("type", ErrInvalidTransactionType)
	}
	return t, nil
}

func ParseRecurringInterval(s string) (RecurringInterval, error) {
	i := RecurringInterval(strings.ToUpper(strings.TrimSpace(s)))
	if !i.IsValid() {
		return "", NewValidationError("recurringInterval", ErrInvalidInterval)
	}
	return i, nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return NewValidationError("userId", ErrEmptyUserID)
	}
	if strings.TrimSpace(a.Name) == "" {
		return NewValidationError("name", ErrEmptyName)
	}
	if len(a.Name) > maxNameLength {
		return NewValidationError("name", ErrNameTooLong)
	}
	if !a.Type.IsValid() {
		return NewValidationError("type", ErrInvalidAccountType)
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return NewValidationError("userId", ErrEmptyUserID)
	}
	if !t.Type.IsValid() {
		return NewValidationError("type", ErrInvalidTransactionType)
	}
	if !t.Amount.IsPositive() {
		return NewValidationError("amount", ErrNonPositiveAmount)
	}
	if t.Date.IsZero() {
		return NewValidationError("date", ErrMissingDate)
	}
	if len(t.Description) > maxDescriptionLength {
		return NewValidationError("description", ErrDescriptionTooLong)
	}
	cat, ok := LookupCategory(t.Category)
	if !ok {
		return NewValidationError("category", ErrUnknownCategory)
	}
	if cat.Type != t.Type {
		return NewValidationError("category", ErrCategoryTypeMismatch)
	}
	if t.IsRecurring {
		if t.RecurringInterval == "" {
			return NewValidationError("recurringInterval", ErrMissingInterval)
		}
		if !t.RecurringInterval.IsValid() {
			return NewValidationError("recurringInterval", ErrInvalidInterval)
		}
	} else if t.RecurringInterval != "" || t.NextRecurringDate != nil {
		return NewValidationError("recurringInterval", ErrUnexpectedInterval)
	}
	return nil
}

func (b Budget) Validate() error {
	if !b.Amount.IsPositive() {
		return NewValidationError("amount", ErrNonPositiveBudget)
	}
	return nil
}
