package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"budgetapp/internal/amqp"
	"budgetapp/internal/core"
	applog "budgetapp/internal/log"
	ports "budgetapp/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	transactionColumns = "A:H"
	auditColumns       = "A:E"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Transactions"); rows go to "<year> <base>".
	transactionsBase string
	auditSheet       string
}

// Ensure interface conformance
var _ ports.Mirror = (*Client)(nil)

type Config struct {
	SpreadsheetID     string
	TransactionsSheet string
	AuditSheet        string
	// Service account credentials, inline JSON or a file path. Ignored when
	// client options are passed to New.
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets mirror. Without opts it authenticates with the
// service account from cfg.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	transactions := strings.TrimSpace(cfg.TransactionsSheet)
	if transactions == "" {
		transactions = "Transactions"
	}
	audit := strings.TrimSpace(cfg.AuditSheet)
	if audit == "" {
		audit = "Audit"
	}

	if len(opts) == 0 {
		creds, err := credentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:              svc,
		spreadsheetID:    spreadsheetID,
		transactionsBase: transactions,
		auditSheet:       audit,
	}, nil
}

// credentials resolves the service account JSON, falling back to
// GOOGLE_APPLICATION_CREDENTIALS when cfg names none.
func credentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	logger := applog.ForComponent(applog.ComponentSheets)
	switch {
	case inline != "":
		logger.DebugContext(ctx, "Using inline JSON credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		logger.DebugContext(ctx, "Reading credentials from file", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendTransaction appends one row to the sheet of the transaction's year.
func (c *Client) AppendTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if t.ID == "" || t.Date.IsZero() {
		return "", errors.New("transaction without id or date")
	}
	sheet := yearPrefixedName(c.transactionsBase, t.Date.UTC().Year())
	return c.append(ctx, sheet, transactionColumns, ports.TransactionRow(t))
}

func (c *Client) AppendAudit(ctx context.Context, ev amqp.LedgerEvent) (string, error) {
	return c.append(ctx, c.auditSheet, auditColumns, ports.AuditRow(ev))
}

func (c *Client) append(ctx context.Context, sheet, columns string, row []any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!%s", quoteSheet(sheet), columns)
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.DebugContext(ctx, "Appended sheet row", applog.FieldComponent, applog.ComponentSheets, "range", ref)
	return ref, nil
}

// quoteSheet quotes sheet names that A1 notation cannot take bare.
func quoteSheet(name string) string {
	if strings.ContainsAny(name, " '!:") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
