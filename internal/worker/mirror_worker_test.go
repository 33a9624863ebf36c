package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"budgetapp/internal/amqp"
	"budgetapp/internal/cache"
	"budgetapp/internal/core"
	"budgetapp/internal/ledger"
	"budgetapp/internal/ledger/memory"
	sheetsmem "budgetapp/internal/sheets/memory"

	"github.com/shopspring/decimal"
)

func seed(t *testing.T) (*memory.Store, core.Transaction) {
	t.Helper()
	store := memory.New()
	var created core.Transaction
	err := store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.UpsertUser(ctx, core.User{ID: "u1"}); err != nil {
			return err
		}
		a, err := tx.CreateAccountRecord(ctx, core.Account{UserID: "u1", Name: "Main", Type: core.AccountCurrent, IsDefault: true})
		if err != nil {
			return err
		}
		created, err = tx.CreateTransactionRecord(ctx, core.Transaction{
			UserID: "u1", AccountID: a.ID, Type: core.Expense, Amount: decimal.NewFromInt(9),
			Category: "food", Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store, created
}

func TestHandleTransactionCreated(t *testing.T) {
	store, tr := seed(t)
	mirror := sheetsmem.New()
	w := NewMirrorWorker(store, mirror)

	ev := amqp.NewLedgerEvent(amqp.TransactionCreated, "u1", tr.AccountID, tr.ID)
	if err := w.HandleEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	rows := mirror.Rows()
	if len(rows) != 1 || rows[0][7] != tr.ID {
		t.Fatalf("rows = %v", rows)
	}
	if len(mirror.Audit()) != 1 {
		t.Fatal("expected one audit row")
	}
}

func TestHandleSkipsMissingTransactions(t *testing.T) {
	store, _ := seed(t)
	mirror := sheetsmem.New()
	w := NewMirrorWorker(store, mirror)

	ev := amqp.NewLedgerEvent(amqp.TransactionCreated, "u1", "", "gone")
	if err := w.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("missing transactions must be skipped, got %v", err)
	}
	if len(mirror.Rows()) != 0 || len(mirror.Audit()) != 1 {
		t.Fatalf("rows=%d audit=%d", len(mirror.Rows()), len(mirror.Audit()))
	}
}

func TestHandleAuditsOtherEvents(t *testing.T) {
	store, _ := seed(t)
	mirror := sheetsmem.New()
	w := NewMirrorWorker(store, mirror)

	for _, typ := range []amqp.EventType{amqp.AccountCreated, amqp.AccountDefaultChanged, amqp.TransactionsDeleted, amqp.BudgetUpdated} {
		if err := w.HandleEvent(context.Background(), amqp.NewLedgerEvent(typ, "u1", "")); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}
	if len(mirror.Rows()) != 0 || len(mirror.Audit()) != 4 {
		t.Fatalf("rows=%d audit=%d", len(mirror.Rows()), len(mirror.Audit()))
	}
}

func TestHandleReturnsMirrorErrors(t *testing.T) {
	store, tr := seed(t)
	mirror := sheetsmem.New()
	boom := errors.New("sheets down")
	mirror.FailWith(boom)
	w := NewMirrorWorker(store, mirror)

	err := w.HandleEvent(context.Background(), amqp.NewLedgerEvent(amqp.TransactionCreated, "u1", tr.AccountID, tr.ID))
	if !errors.Is(err, boom) {
		t.Fatalf("expected mirror error for redelivery, got %v", err)
	}
}

type fakeConsumer struct {
	events []*amqp.LedgerEvent
	errs   []error
}

func (f *fakeConsumer) ConsumeEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error {
	for _, ev := range f.events {
		f.errs = append(f.errs, handler(ctx, ev))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunStopsOnCancel(t *testing.T) {
	store, tr := seed(t)
	mirror := sheetsmem.New()
	w := NewMirrorWorker(store, mirror)
	consumer := &fakeConsumer{events: []*amqp.LedgerEvent{
		amqp.NewLedgerEvent(amqp.TransactionCreated, "u1", tr.AccountID, tr.ID),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	deadline := time.After(2 * time.Second)
	for len(mirror.Audit()) == 0 {
		select {
		case <-deadline:
			t.Fatal("event was not handled")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if len(consumer.errs) != 1 || consumer.errs[0] != nil {
		t.Fatalf("handler errors = %v", consumer.errs)
	}
}

func TestRunSweepsExpiredMirroredIDs(t *testing.T) {
	store, tr := seed(t)
	mirror := sheetsmem.New()
	w := NewMirrorWorker(store, mirror)
	w.mirrored = cache.NewLRU[string](mirroredSize, time.Millisecond)
	w.sweepEvery = 5 * time.Millisecond
	consumer := &fakeConsumer{events: []*amqp.LedgerEvent{
		amqp.NewLedgerEvent(amqp.TransactionCreated, "u1", tr.AccountID, tr.ID),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	deadline := time.After(2 * time.Second)
	for len(mirror.Rows()) == 0 || w.mirrored.Len() != 0 {
		select {
		case <-deadline:
			t.Fatalf("rows=%d cached=%d", len(mirror.Rows()), w.mirrored.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRedeliveryDoesNotDuplicateRows(t *testing.T) {
	store, tr := seed(t)
	mirror := &failAuditOnce{Store: sheetsmem.New()}
	w := NewMirrorWorker(store, mirror)
	ev := amqp.NewLedgerEvent(amqp.TransactionCreated, "u1", tr.AccountID, tr.ID)

	if err := w.HandleEvent(context.Background(), ev); err == nil {
		t.Fatal("expected audit failure")
	}
	if err := w.HandleEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(mirror.Rows()) != 1 || len(mirror.Audit()) != 1 {
		t.Fatalf("rows=%d audit=%d", len(mirror.Rows()), len(mirror.Audit()))
	}
}

// failAuditOnce fails the first audit append only.
type failAuditOnce struct {
	*sheetsmem.Store
	failed bool
}

func (f *failAuditOnce) AppendAudit(ctx context.Context, ev amqp.LedgerEvent) (string, error) {
	if !f.failed {
		f.failed = true
		return "", errors.New("quota exceeded")
	}
	return f.Store.AppendAudit(ctx, ev)
}
