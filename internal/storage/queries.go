package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the hand-written SQL shared by the repository and its
// transactions.
type Queries struct {
	db  DBTX
	now func() time.Time
}

func New(db DBTX) *Queries {
	return &Queries{db: db, now: time.Now}
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

const accountColumns = `id, user_id, name, type, balance, is_default, created_at, updated_at`

const transactionColumns = `id, user_id, account_id, type, amount, category, date, description,
	is_recurring, recurring_interval, next_recurring_date, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (core.User, error) {
	var (
		u                    core.User
		createdAt, updatedAt string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.ImageURL, &createdAt, &updatedAt); err != nil {
		return core.User{}, err
	}
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.User{}, fmt.Errorf("parse user created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.User{}, fmt.Errorf("parse user updated_at: %w", err)
	}
	return u, nil
}

func scanAccount(row scanner) (core.Account, error) {
	var (
		a                    core.Account
		accType, balance     string
		isDefault            int64
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &accType, &balance, &isDefault, &createdAt, &updatedAt); err != nil {
		return core.Account{}, err
	}
	var err error
	a.Type = core.AccountType(accType)
	a.IsDefault = isDefault != 0
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return core.Account{}, fmt.Errorf("parse account balance: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Account{}, fmt.Errorf("parse account created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Account{}, fmt.Errorf("parse account updated_at: %w", err)
	}
	return a, nil
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		txType, amount, date string
		isRecurring          int64
		interval, nextDate   sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &txType, &amount, &t.Category, &date, &t.Description,
		&isRecurring, &interval, &nextDate, &createdAt, &updatedAt); err != nil {
		return core.Transaction{}, err
	}
	var err error
	t.Type = core.TransactionType(txType)
	t.IsRecurring = isRecurring != 0
	t.RecurringInterval = core.RecurringInterval(interval.String)
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction amount: %w", err)
	}
	if t.Date, err = parseTime(date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date: %w", err)
	}
	if nextDate.Valid {
		next, err := parseTime(nextDate.String)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("parse next_recurring_date: %w", err)
		}
		t.NextRecurringDate = &next
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction updated_at: %w", err)
	}
	return t, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// translateErr maps driver constraint failures onto ledger errors.
func translateErr(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		if strings.Contains(se.Error(), "accounts.user_id") {
			return ledger.ErrDuplicateDefault
		}
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return ledger.ErrDanglingTransactions
	}
	return err
}

func (q *Queries) FindUser(ctx context.Context, userID string) (core.User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, email, name, image_url, created_at, updated_at FROM users WHERE id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NewNotFoundError("user", userID)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (q *Queries) FindAccountsByUser(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("find accounts: %w", err)
	}
	defer rows.Close()

	out := []core.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) FindAccount(ctx context.Context, accountID string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, accountID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NewNotFoundError("account", accountID)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

func (q *Queries) CountTransactionsByAccount(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT account_id, COUNT(*) FROM transactions WHERE user_id = ? GROUP BY account_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (q *Queries) listTransactions(ctx context.Context, where string, arg string) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where+` = ? ORDER BY created_at, rowid`, arg)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) FindTransactionsByUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	return q.listTransactions(ctx, "user_id", userID)
}

func (q *Queries) FindTransactionsByAccount(ctx context.Context, accountID string) ([]core.Transaction, error) {
	return q.listTransactions(ctx, "account_id", accountID)
}

func (q *Queries) FindTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, transactionID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NewNotFoundError("transaction", transactionID)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction: %w", err)
	}
	return t, nil
}

func (q *Queries) FindBudgetByUser(ctx context.Context, userID string) (*core.Budget, error) {
	var (
		b                            core.Budget
		amount, createdAt, updatedAt string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, created_at, updated_at FROM budgets WHERE user_id = ?`, userID).
		Scan(&b.ID, &b.UserID, &amount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find budget: %w", err)
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse budget amount: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse budget created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse budget updated_at: %w", err)
	}
	return &b, nil
}

// LockUser relies on the IMMEDIATE transaction already holding the write
// lock; it only checks that the user exists.
func (q *Queries) LockUser(ctx context.Context, userID string) error {
	var one int
	err := q.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewNotFoundError("user", userID)
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (q *Queries) UpsertUser(ctx context.Context, u core.User) (core.User, error) {
	now := formatTime(q.now())
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   email = excluded.email,
		   name = excluded.name,
		   image_url = excluded.image_url,
		   updated_at = excluded.updated_at`,
		u.ID, u.Email, u.Name, u.ImageURL, now, now)
	if err != nil {
		return core.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return q.FindUser(ctx, u.ID)
}

func (q *Queries) CreateAccountRecord(ctx context.Context, a core.Account) (core.Account, error) {
	if a.ID == "" {
		a.ID = ledger.NewID()
	}
	now := formatTime(q.now())
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, string(a.Type), a.Balance.String(), boolInt(a.IsDefault), now, now)
	if err != nil {
		if errors.Is(translateErr(err), ledger.ErrDanglingTransactions) {
			return core.Account{}, core.NewNotFoundError("user", a.UserID)
		}
		return core.Account{}, fmt.Errorf("create account: %w", translateErr(err))
	}
	return q.FindAccount(ctx, a.ID)
}

func (q *Queries) UpdateAccountRecord(ctx context.Context, accountID string, patch core.AccountPatch) (core.Account, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(q.now())}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, string(*patch.Type))
	}
	if patch.Balance != nil {
		sets = append(sets, "balance = ?")
		args = append(args, patch.Balance.String())
	}
	if patch.IsDefault != nil {
		sets = append(sets, "is_default = ?")
		args = append(args, boolInt(*patch.IsDefault))
	}
	args = append(args, accountID)

	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return core.Account{}, fmt.Errorf("update account: %w", translateErr(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.Account{}, core.NewNotFoundError("account", accountID)
	}
	return q.FindAccount(ctx, accountID)
}

func (q *Queries) ClearDefaultAccounts(ctx context.Context, userID, exceptID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET is_default = 0, updated_at = ?
		 WHERE user_id = ? AND is_default = 1 AND id <> ?`,
		formatTime(q.now()), userID, exceptID)
	if err != nil {
		return fmt.Errorf("clear default accounts: %w", err)
	}
	return nil
}

func (q *Queries) DeleteAccountRecord(ctx context.Context, accountID string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("delete account: %w", translateErr(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewNotFoundError("account", accountID)
	}
	return nil
}

func (q *Queries) DeleteTransactionsByAccount(ctx context.Context, accountID string) (int, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, fmt.Errorf("delete account transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted transactions: %w", err)
	}
	return int(n), nil
}

func (q *Queries) CreateTransactionRecord(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	owner, err := q.FindAccount(ctx, t.AccountID)
	if err != nil {
		return core.Transaction{}, err
	}
	if owner.UserID != t.UserID {
		return core.Transaction{}, core.NewNotFoundError("account", t.AccountID)
	}
	if t.ID == "" {
		t.ID = ledger.NewID()
	}
	now := formatTime(q.now())
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AccountID, string(t.Type), t.Amount.String(), t.Category, formatTime(t.Date), t.Description,
		boolInt(t.IsRecurring), nullString(string(t.RecurringInterval)), nullTime(t.NextRecurringDate), now, now)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return q.FindTransaction(ctx, t.ID)
}

func (q *Queries) DeleteTransactionRecords(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted transactions: %w", err)
	}
	return int(n), nil
}

func (q *Queries) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal) (core.Budget, error) {
	now := formatTime(q.now())
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		ledger.NewID(), userID, amount.String(), now, now)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	b, err := q.FindBudgetByUser(ctx, userID)
	if err != nil {
		return core.Budget{}, err
	}
	return *b, nil
}
