// Package worker mirrors committed ledger events into a spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetapp/internal/amqp"
	"budgetapp/internal/cache"
	"budgetapp/internal/core"
	"budgetapp/internal/ledger"
	applog "budgetapp/internal/log"
	"budgetapp/internal/sheets"
)

// EventConsumer delivers events to a handler until ctx is cancelled.
type EventConsumer interface {
	ConsumeEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error
}

// MirrorWorker appends created transactions to the transactions sheet and
// every event to the audit sheet. Events carry ids only; row contents are
// read from the store when the event is handled.
//
// Recently mirrored transaction ids are remembered so a redelivered event
// does not append the same row twice.
type MirrorWorker struct {
	store      ledger.Reader
	mirror     sheets.Mirror
	mirrored   *cache.LRU[string]
	sweepEvery time.Duration
	logger     *applog.Logger
}

const (
	mirroredSize  = 10000
	mirroredTTL   = 24 * time.Hour
	mirroredSweep = time.Hour
)

func NewMirrorWorker(store ledger.Reader, mirror sheets.Mirror) *MirrorWorker {
	return &MirrorWorker{
		store:      store,
		mirror:     mirror,
		mirrored:   cache.NewLRU[string](mirroredSize, mirroredTTL),
		sweepEvery: mirroredSweep,
		logger:     applog.ForComponent(applog.ComponentWorker),
	}
}

// Run consumes events until ctx is cancelled. Expired entries of the
// mirrored-id cache are swept on a timer meanwhile.
func (w *MirrorWorker) Run(ctx context.Context, consumer EventConsumer) error {
	sweepCtx, stop := context.WithCancel(ctx)
	defer stop()
	go w.sweep(sweepCtx)

	err := consumer.ConsumeEvents(ctx, w.HandleEvent)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *MirrorWorker) sweep(ctx context.Context) {
	ticker := time.NewTicker(w.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.mirrored.CleanExpired(); n > 0 {
				w.logger.DebugContext(ctx, "Expired mirrored ids dropped", applog.FieldCount, n)
			}
		}
	}
}

// HandleEvent processes one event. A returned error asks the broker to
// redeliver it.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		applog.FieldEventType, ev.Type,
		applog.FieldUserID, ev.UserID,
		applog.FieldCount, len(ev.TransactionIDs))

	if ev.Type == amqp.TransactionCreated {
		for _, id := range ev.TransactionIDs {
			if err := w.mirrorTransaction(ctx, id); err != nil {
				return err
			}
		}
	}

	ref, err := w.mirror.AppendAudit(ctx, *ev)
	if err != nil {
		return fmt.Errorf("append audit row: %w", err)
	}
	w.logger.DebugContext(ctx, "Audit row appended", applog.FieldEventType, ev.Type, "sheets_ref", ref)
	return nil
}

func (w *MirrorWorker) mirrorTransaction(ctx context.Context, id string) error {
	if ref, ok := w.mirrored.Get(id); ok {
		w.logger.DebugContext(ctx, "Transaction already mirrored", applog.FieldTransactionID, id, "sheets_ref", ref)
		return nil
	}
	t, err := w.store.FindTransaction(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted before it could be mirrored.
		w.logger.WarnContext(ctx, "Skipping missing transaction", applog.FieldTransactionID, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from store: %w", err)
	}

	ref, err := w.mirror.AppendTransaction(ctx, t)
	if err != nil {
		return fmt.Errorf("append transaction row: %w", err)
	}
	w.mirrored.Set(t.ID, ref)
	w.logger.InfoContext(ctx, "Successfully mirrored transaction",
		applog.FieldTransactionID, t.ID,
		applog.FieldAccountID, t.AccountID,
		applog.FieldAmount, t.Amount.String(),
		"sheets_ref", ref)
	return nil
}
