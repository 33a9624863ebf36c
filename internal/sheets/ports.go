// Package sheets defines the outbound ports of the spreadsheet mirror.
package sheets

import (
	"context"
	"strings"
	"time"

	"budgetapp/internal/amqp"
	"budgetapp/internal/core"
)

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		// AppendTransaction writes one row for t and returns a reference to it.
		AppendTransaction(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}

	AuditWriter interface {
		AppendAudit(ctx context.Context, ev amqp.LedgerEvent) (rowRef string, err error)
	}

	Mirror interface {
		TransactionWriter
		AuditWriter
	}
)

// TransactionRow is the column layout of the transactions sheet.
func TransactionRow(t core.Transaction) []any {
	category := t.Category
	if c, ok := core.LookupCategory(t.Category); ok {
		category = c.Name
	}
	return []any{
		t.Date.UTC().Format("2006-01-02"),
		t.Description,
		category,
		string(t.Type),
		core.ToWire(t.Amount),
		string(t.RecurringInterval),
		t.AccountID,
		t.ID,
	}
}

// AuditRow is the column layout of the audit sheet.
func AuditRow(ev amqp.LedgerEvent) []any {
	return []any{
		ev.Timestamp.UTC().Format(time.RFC3339),
		string(ev.Type),
		ev.UserID,
		ev.AccountID,
		strings.Join(ev.TransactionIDs, ","),
	}
}
