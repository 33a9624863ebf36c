package services

import (
	"context"

	"budgetapp/internal/amqp"
	applog "budgetapp/internal/log"
)

// EventPublisher receives ledger events after their unit of work commits.
// *amqp.Client satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// publish never fails the caller: the write it describes is already committed.
func publish(ctx context.Context, pub EventPublisher, ev *amqp.LedgerEvent) {
	if pub == nil {
		return
	}
	if err := pub.PublishEvent(ctx, ev); err != nil {
		applog.ForComponent(applog.ComponentAMQP).ErrorContext(ctx, "Failed to publish ledger event",
			applog.FieldEventType, ev.Type,
			applog.FieldUserID, ev.UserID,
			applog.FieldError, err)
	}
}
