// Package memory is an in-process ledger store.
//
// A transaction works on a private copy of the whole state while holding the
// write lock and swaps it in on success, so readers (which take the read lock)
// observe either the state before or after a unit of work, never a mix.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/ledger"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source for created/updated fields.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{state: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx runs fn against a staged copy and commits it only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := s.state.clone()
	if err := fn(ctx, &memTx{state: staged, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Committed states are never mutated after the swap, so handing out the
// pointer past the read lock is safe.

func (s *Store) FindUser(ctx context.Context, userID string) (core.User, error) {
	return s.read().findUser(userID)
}

func (s *Store) FindAccountsByUser(ctx context.Context, userID string) ([]core.Account, error) {
	return s.read().findAccountsByUser(userID), nil
}

func (s *Store) FindAccount(ctx context.Context, accountID string) (core.Account, error) {
	return s.read().findAccount(accountID)
}

func (s *Store) CountTransactionsByAccount(ctx context.Context, userID string) (map[string]int, error) {
	return s.read().countByAccount(userID), nil
}

func (s *Store) FindTransactionsByUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.read().findTransactions(func(t core.Transaction) bool { return t.UserID == userID }), nil
}

func (s *Store) FindTransactionsByAccount(ctx context.Context, accountID string) ([]core.Transaction, error) {
	return s.read().findTransactions(func(t core.Transaction) bool { return t.AccountID == accountID }), nil
}

func (s *Store) FindTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	return s.read().findTransaction(transactionID)
}

func (s *Store) FindBudgetByUser(ctx context.Context, userID string) (*core.Budget, error) {
	return s.read().findBudget(userID), nil
}

type state struct {
	users        map[string]core.User
	accounts     map[string]core.Account
	accountOrder []string
	transactions map[string]core.Transaction
	txOrder      []string
	budgets      map[string]core.Budget
}

func newState() *state {
	return &state{
		users:        make(map[string]core.User),
		accounts:     make(map[string]core.Account),
		transactions: make(map[string]core.Transaction),
		budgets:      make(map[string]core.Budget),
	}
}

func (st *state) clone() *state {
	c := &state{
		users:        make(map[string]core.User, len(st.users)),
		accounts:     make(map[string]core.Account, len(st.accounts)),
		accountOrder: slices.Clone(st.accountOrder),
		transactions: make(map[string]core.Transaction, len(st.transactions)),
		txOrder:      slices.Clone(st.txOrder),
		budgets:      make(map[string]core.Budget, len(st.budgets)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.transactions {
		c.transactions[k] = v
	}
	for k, v := range st.budgets {
		c.budgets[k] = v
	}
	return c
}

func (st *state) findUser(userID string) (core.User, error) {
	u, ok := st.users[userID]
	if !ok {
		return core.User{}, core.NewNotFoundError("user", userID)
	}
	return u, nil
}

func (st *state) findAccountsByUser(userID string) []core.Account {
	out := []core.Account{}
	for i := len(st.accountOrder) - 1; i >= 0; i-- {
		if a := st.accounts[st.accountOrder[i]]; a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

func (st *state) findAccount(accountID string) (core.Account, error) {
	a, ok := st.accounts[accountID]
	if !ok {
		return core.Account{}, core.NewNotFoundError("account", accountID)
	}
	return a, nil
}

func (st *state) countByAccount(userID string) map[string]int {
	out := make(map[string]int)
	for _, t := range st.transactions {
		if t.UserID == userID {
			out[t.AccountID]++
		}
	}
	return out
}

func (st *state) findTransactions(match func(core.Transaction) bool) []core.Transaction {
	out := []core.Transaction{}
	for _, id := range st.txOrder {
		if t := st.transactions[id]; match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (st *state) findTransaction(transactionID string) (core.Transaction, error) {
	t, ok := st.transactions[transactionID]
	if !ok {
		return core.Transaction{}, core.NewNotFoundError("transaction", transactionID)
	}
	return t, nil
}

func (st *state) findBudget(userID string) *core.Budget {
	b, ok := st.budgets[userID]
	if !ok {
		return nil
	}
	return &b
}

func (st *state) hasOtherDefault(userID, exceptID string) bool {
	for _, a := range st.accounts {
		if a.UserID == userID && a.IsDefault && a.ID != exceptID {
			return true
		}
	}
	return false
}

type memTx struct {
	state *state
	now   func() time.Time
}

var _ ledger.Tx = (*memTx)(nil)

func (t *memTx) FindUser(ctx context.Context, userID string) (core.User, error) {
	return t.state.findUser(userID)
}

func (t *memTx) FindAccountsByUser(ctx context.Context, userID string) ([]core.Account, error) {
	return t.state.findAccountsByUser(userID), nil
}

func (t *memTx) FindAccount(ctx context.Context, accountID string) (core.Account, error) {
	return t.state.findAccount(accountID)
}

func (t *memTx) CountTransactionsByAccount(ctx context.Context, userID string) (map[string]int, error) {
	return t.state.countByAccount(userID), nil
}

func (t *memTx) FindTransactionsByUser(ctx context.Context, userID string) ([]core.Transaction, error) {
	return t.state.findTransactions(func(tx core.Transaction) bool { return tx.UserID == userID }), nil
}

func (t *memTx) FindTransactionsByAccount(ctx context.Context, accountID string) ([]core.Transaction, error) {
	return t.state.findTransactions(func(tx core.Transaction) bool { return tx.AccountID == accountID }), nil
}

func (t *memTx) FindTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	return t.state.findTransaction(transactionID)
}

func (t *memTx) FindBudgetByUser(ctx context.Context, userID string) (*core.Budget, error) {
	return t.state.findBudget(userID), nil
}

// LockUser only checks existence: the store-wide write lock already
// serializes every transaction.
func (t *memTx) LockUser(ctx context.Context, userID string) error {
	_, err := t.state.findUser(userID)
	return err
}

func (t *memTx) UpsertUser(ctx context.Context, u core.User) (core.User, error) {
	now := t.now()
	if existing, ok := t.state.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	t.state.users[u.ID] = u
	return u, nil
}

func (t *memTx) CreateAccountRecord(ctx context.Context, a core.Account) (core.Account, error) {
	if _, ok := t.state.users[a.UserID]; !ok {
		return core.Account{}, core.NewNotFoundError("user", a.UserID)
	}
	if a.ID == "" {
		a.ID = ledger.NewID()
	}
	if a.IsDefault && t.state.hasOtherDefault(a.UserID, a.ID) {
		return core.Account{}, ledger.ErrDuplicateDefault
	}
	now := t.now()
	a.CreatedAt, a.UpdatedAt = now, now
	t.state.accounts[a.ID] = a
	t.state.accountOrder = append(t.state.accountOrder, a.ID)
	return a, nil
}

func (t *memTx) UpdateAccountRecord(ctx context.Context, accountID string, patch core.AccountPatch) (core.Account, error) {
	a, err := t.state.findAccount(accountID)
	if err != nil {
		return core.Account{}, err
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Type != nil {
		a.Type = *patch.Type
	}
	if patch.Balance != nil {
		a.Balance = *patch.Balance
	}
	if patch.IsDefault != nil {
		if *patch.IsDefault && t.state.hasOtherDefault(a.UserID, a.ID) {
			return core.Account{}, ledger.ErrDuplicateDefault
		}
		a.IsDefault = *patch.IsDefault
	}
	a.UpdatedAt = t.now()
	t.state.accounts[a.ID] = a
	return a, nil
}

func (t *memTx) ClearDefaultAccounts(ctx context.Context, userID, exceptID string) error {
	now := t.now()
	for id, a := range t.state.accounts {
		if a.UserID == userID && a.IsDefault && id != exceptID {
			a.IsDefault = false
			a.UpdatedAt = now
			t.state.accounts[id] = a
		}
	}
	return nil
}

func (t *memTx) DeleteAccountRecord(ctx context.Context, accountID string) error {
	if _, err := t.state.findAccount(accountID); err != nil {
		return err
	}
	for _, tx := range t.state.transactions {
		if tx.AccountID == accountID {
			// Mirrors the foreign key in the SQL stores.
			return ledger.ErrDanglingTransactions
		}
	}
	delete(t.state.accounts, accountID)
	t.state.accountOrder = slices.DeleteFunc(t.state.accountOrder, func(id string) bool { return id == accountID })
	return nil
}

func (t *memTx) DeleteTransactionsByAccount(ctx context.Context, accountID string) (int, error) {
	return t.deleteTransactions(func(tx core.Transaction) bool { return tx.AccountID == accountID }), nil
}

func (t *memTx) CreateTransactionRecord(ctx context.Context, tr core.Transaction) (core.Transaction, error) {
	a, err := t.state.findAccount(tr.AccountID)
	if err != nil {
		return core.Transaction{}, err
	}
	if a.UserID != tr.UserID {
		return core.Transaction{}, core.NewNotFoundError("account", tr.AccountID)
	}
	if tr.ID == "" {
		tr.ID = ledger.NewID()
	}
	now := t.now()
	tr.CreatedAt, tr.UpdatedAt = now, now
	t.state.transactions[tr.ID] = tr
	t.state.txOrder = append(t.state.txOrder, tr.ID)
	return tr, nil
}

func (t *memTx) DeleteTransactionRecords(ctx context.Context, userID string, ids []string) (int, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return t.deleteTransactions(func(tx core.Transaction) bool {
		_, ok := want[tx.ID]
		return ok && tx.UserID == userID
	}), nil
}

func (t *memTx) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal) (core.Budget, error) {
	now := t.now()
	b, ok := t.state.budgets[userID]
	if !ok {
		b = core.Budget{ID: ledger.NewID(), UserID: userID, CreatedAt: now}
	}
	b.Amount = amount
	b.UpdatedAt = now
	t.state.budgets[userID] = b
	return b, nil
}

func (t *memTx) deleteTransactions(match func(core.Transaction) bool) int {
	removed := 0
	for id, tx := range t.state.transactions {
		if match(tx) {
			delete(t.state.transactions, id)
			removed++
		}
	}
	if removed > 0 {
		t.state.txOrder = slices.DeleteFunc(t.state.txOrder, func(id string) bool {
			_, ok := t.state.transactions[id]
			return !ok
		})
	}
	return removed
}
