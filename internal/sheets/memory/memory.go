// Package memory is an in-process spreadsheet mirror for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"budgetapp/internal/amqp"
	"budgetapp/internal/core"
	"budgetapp/internal/sheets"
)

var _ sheets.Mirror = (*Store)(nil)

type Store struct {
	mu    sync.Mutex
	rows  [][]any
	audit [][]any
	err   error
}

func New() *Store {
	return &Store{}
}

// FailWith makes every subsequent append fail with err; nil restores normal
// behaviour.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// AppendTransaction stores the row and returns a synthetic row reference.
func (s *Store) AppendTransaction(_ context.Context, t core.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.rows = append(s.rows, sheets.TransactionRow(t))
	return fmt.Sprintf("mem:transactions:%d", len(s.rows)), nil
}

func (s *Store) AppendAudit(_ context.Context, ev amqp.LedgerEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.audit = append(s.audit, sheets.AuditRow(ev))
	return fmt.Sprintf("mem:audit:%d", len(s.audit)), nil
}

// Rows returns a copy of the mirrored transaction rows.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.rows...)
}

func (s *Store) Audit() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.audit...)
}
