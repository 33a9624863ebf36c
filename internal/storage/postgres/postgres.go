// Package postgres is the PostgreSQL ledger store built on pgxpool.
//
// LockUser takes a row lock on the user so concurrent structural writes for
// the same user run one after another.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    *queries
}

var _ ledger.Store = (*Store)(nil)

// Open connects to databaseURL and applies pending migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	slog.InfoContext(ctx, "Postgres ledger store ready")
	return &Store{pool: pool, q: &queries{db: pool, now: time.Now}}, nil
}

// RunMigrations applies the embedded schema through the pgx/v5 migrate driver.
func RunMigrations(databaseURL string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a libpq URL to the scheme the pgx/v5 driver registers.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &queries{db: pgTx, now: s.q.now}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, userID string) (core.User, error) {
	return s.q.FindUser(ctx, userID)
}

func (s *Store) FindAccountsByUser(ctx context.Context, userID string) ([]core.Account, error) {
	return s.q.FindAccountsByUser(ctx, userID)
}

func (s *Store) FindAccount(ctx context.Context, accountID string) (core.Account, error) {
	return s.q.FindAccount(ctx, accountID)
}

func (s *Store) CountTransactionsByAccount(ctx context.Context, userID string) (map[string]int, error) {
	return s.q.CountTransactionsByAccount(ctx, userID)
}

func (s *Store) FindTransactionsByUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.q.FindTransactionsByUser(ctx, userID)
}

func (s *Store) FindTransactionsByAccount(ctx context.Context, accountID string) ([]core.Transaction, error) {
	return s.q.FindTransactionsByAccount(ctx, accountID)
}

func (s *Store) FindTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	return s.q.FindTransaction(ctx, transactionID)
}

func (s *Store) FindBudgetByUser(ctx context.Context, userID string) (*core.Budget, error) {
	return s.q.FindBudgetByUser(ctx, userID)
}

type queries struct {
	db  dbtx
	now func() time.Time
}

var _ ledger.Tx = (*queries)(nil)

const accountColumns = `id, user_id, name, type, balance::text, is_default, created_at, updated_at`

const transactionColumns = `id, user_id, account_id, type, amount::text, category, date, description,
	is_recurring, COALESCE(recurring_interval, ''), next_recurring_date, created_at, updated_at`

// translateErr maps constraint violations onto ledger errors.
func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == "idx_accounts_one_default" {
			return ledger.ErrDuplicateDefault
		}
	case "23503":
		return ledger.ErrDanglingTransactions
	}
	return err
}

func scanAccount(row pgx.Row) (core.Account, error) {
	var (
		a       core.Account
		accType string
		balance string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &accType, &balance, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return core.Account{}, err
	}
	a.Type = core.AccountType(accType)
	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return core.Account{}, fmt.Errorf("parse account balance: %w", err)
	}
	return a, nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t        core.Transaction
		txType   string
		amount   string
		interval string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &txType, &amount, &t.Category, &t.Date, &t.Description,
		&t.IsRecurring, &interval, &t.NextRecurringDate, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(txType)
	t.RecurringInterval = core.RecurringInterval(interval)
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction amount: %w", err)
	}
	return t, nil
}

func (q *queries) FindUser(ctx context.Context, userID string) (core.User, error) {
	var u core.User
	err := q.db.QueryRow(ctx,
		`SELECT id, email, name, image_url, created_at, updated_at FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email, &u.Name, &u.ImageURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, core.NewNotFoundError("user", userID)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (q *queries) FindAccountsByUser(ctx context.Context, userID string) ([]core.Account, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at DESC, seq DESC`, userID)
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

func (q *queries) FindAccount(ctx context.Context, accountID string) (core.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Account{}, core.NewNotFoundError("account", accountID)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

func (q *queries) CountTransactionsByAccount(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := q.db.Query(ctx,
		`SELECT account_id, COUNT(*) FROM transactions WHERE user_id = $1 GROUP BY account_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[id] = int(n)
	}
	return out, rows.Err()
}

func (q *queries) listTransactions(ctx context.Context, column, arg string) ([]core.Transaction, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+column+` = $1 ORDER BY created_at, seq`, arg)
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

func (q *queries) FindTransactionsByUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	return q.listTransactions(ctx, "user_id", userID)
}

func (q *queries) FindTransactionsByAccount(ctx context.Context, accountID string) ([]core.Transaction, error) {
	return q.listTransactions(ctx, "account_id", accountID)
}

func (q *queries) FindTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.NewNotFoundError("transaction", transactionID)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction: %w", err)
	}
	return t, nil
}

func (q *queries) FindBudgetByUser(ctx context.Context, userID string) (*core.Budget, error) {
	var (
		b      core.Budget
		amount string
	)
	err := q.db.QueryRow(ctx,
		`SELECT id, user_id, amount::text, created_at, updated_at FROM budgets WHERE user_id = $1`, userID).
		Scan(&b.ID, &b.UserID, &amount, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find budget: %w", err)
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse budget amount: %w", err)
	}
	return &b, nil
}

func (q *queries) LockUser(ctx context.Context, userID string) error {
	var id string
	err := q.db.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NewNotFoundError("user", userID)
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (q *queries) UpsertUser(ctx context.Context, u core.User) (core.User, error) {
	now := q.now().UTC()
	err := q.db.QueryRow(ctx,
		`INSERT INTO users (id, email, name, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   email = EXCLUDED.email,
		   name = EXCLUDED.name,
		   image_url = EXCLUDED.image_url,
		   updated_at = EXCLUDED.updated_at
		 RETURNING created_at, updated_at`,
		u.ID, u.Email, u.Name, u.ImageURL, now).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (q *queries) CreateAccountRecord(ctx context.Context, a core.Account) (core.Account, error) {
	if a.ID == "" {
		a.ID = ledger.NewID()
	}
	now := q.now().UTC()
	_, err := q.db.Exec(ctx,
		`INSERT INTO accounts (id, user_id, name, type, balance, is_default, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $7)`,
		a.ID, a.UserID, a.Name, string(a.Type), a.Balance.String(), a.IsDefault, now)
	if err != nil {
		if errors.Is(translateErr(err), ledger.ErrDanglingTransactions) {
			return core.Account{}, core.NewNotFoundError("user", a.UserID)
		}
		return core.Account{}, fmt.Errorf("create account: %w", translateErr(err))
	}
	return q.FindAccount(ctx, a.ID)
}

func (q *queries) UpdateAccountRecord(ctx context.Context, accountID string, patch core.AccountPatch) (core.Account, error) {
	sets := []string{"updated_at = $1"}
	args := []any{q.now().UTC()}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Type != nil {
		add("type", string(*patch.Type))
	}
	if patch.Balance != nil {
		args = append(args, patch.Balance.String())
		sets = append(sets, fmt.Sprintf("balance = $%d::numeric", len(args)))
	}
	if patch.IsDefault != nil {
		add("is_default", *patch.IsDefault)
	}
	args = append(args, accountID)

	tag, err := q.db.Exec(ctx,
		fmt.Sprintf(`UPDATE accounts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return core.Account{}, fmt.Errorf("update account: %w", translateErr(err))
	}
	if tag.RowsAffected() == 0 {
		return core.Account{}, core.NewNotFoundError("account", accountID)
	}
	return q.FindAccount(ctx, accountID)
}

func (q *queries) ClearDefaultAccounts(ctx context.Context, userID, exceptID string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE accounts SET is_default = FALSE, updated_at = $1
		 WHERE user_id = $2 AND is_default AND id <> $3`,
		q.now().UTC(), userID, exceptID)
	if err != nil {
		return fmt.Errorf("clear default accounts: %w", err)
	}
	return nil
}

func (q *queries) DeleteAccountRecord(ctx context.Context, accountID string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("delete account: %w", translateErr(err))
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("account", accountID)
	}
	return nil
}

func (q *queries) DeleteTransactionsByAccount(ctx context.Context, accountID string) (int, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM transactions WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("delete account transactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (q *queries) CreateTransactionRecord(ctx context.Context, t core.Transaction) (core.Transaction, error) {
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
	var interval *string
	if t.RecurringInterval != "" {
		s := string(t.RecurringInterval)
		interval = &s
	}
	now := q.now().UTC()
	_, err = q.db.Exec(ctx,
		`INSERT INTO transactions (id, user_id, account_id, type, amount, category, date, description,
		   is_recurring, recurring_interval, next_recurring_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $12)`,
		t.ID, t.UserID, t.AccountID, string(t.Type), t.Amount.String(), t.Category, t.Date.UTC(), t.Description,
		t.IsRecurring, interval, t.NextRecurringDate, now)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return q.FindTransaction(ctx, t.ID)
}

func (q *queries) DeleteTransactionRecords(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := q.db.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (q *queries) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal) (core.Budget, error) {
	now := q.now().UTC()
	b := core.Budget{UserID: userID, Amount: amount}
	err := q.db.QueryRow(ctx,
		`INSERT INTO budgets (id, user_id, amount, created_at, updated_at)
		 VALUES ($1, $2, $3::numeric, $4, $4)
		 ON CONFLICT (user_id) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, updated_at`,
		ledger.NewID(), userID, amount.String(), now).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	return b, nil
}
