// Package storage is the SQLite ledger store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

// DSN builds the connection string for dbPath. Every transaction starts
// IMMEDIATE so writers serialize on the database lock instead of failing
// on upgrade.
func DSN(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_txlock", "immediate")
	return "file:" + dbPath + "?" + q.Encode()
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite ledger store ready", "path", dbPath)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithTx runs fn inside one database transaction. The transaction commits
// only when fn returns nil.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	q := &Queries{db: sqlTx, now: r.now}
	if err := fn(ctx, q); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ ledger.Tx = (*Queries)(nil)

func (r *SQLiteRepository) FindUser(ctx context.Context, userID string) (core.User, error) {
	return r.queries.FindUser(ctx, userID)
}

func (r *SQLiteRepository) FindAccountsByUser(ctx context.Context, userID string) ([]core.Account, error) {
	return r.queries.FindAccountsByUser(ctx, userID)
}

func (r *SQLiteRepository) FindAccount(ctx context.Context, accountID string) (core.Account, error) {
	return r.queries.FindAccount(ctx, accountID)
}

func (r *SQLiteRepository) CountTransactionsByAccount(ctx context.Context, userID string) (map[string]int, error) {
	return r.queries.CountTransactionsByAccount(ctx, userID)
}

func (r *SQLiteRepository) FindTransactionsByUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	return r.queries.FindTransactionsByUser(ctx, userID)
}

func (r *SQLiteRepository) FindTransactionsByAccount(ctx context.Context, accountID string) ([]core.Transaction, error) {
	return r.queries.FindTransactionsByAccount(ctx, accountID)
}

func (r *SQLiteRepository) FindTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	return r.queries.FindTransaction(ctx, transactionID)
}

func (r *SQLiteRepository) FindBudgetByUser(ctx context.Context, userID string) (*core.Budget, error) {
	return r.queries.FindBudgetByUser(ctx, userID)
}
