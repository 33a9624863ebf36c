package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a committed ledger change.
type EventType string

const (
	AccountCreated        EventType = "account.created"
	AccountDeleted        EventType = "account.deleted"
	AccountDefaultChanged EventType = "account.default_changed"
	TransactionCreated    EventType = "transaction.created"
	TransactionsDeleted   EventType = "transactions.deleted"
	BudgetUpdated         EventType = "budget.updated"
)

func (t EventType) IsValid() bool {
	switch t {
	case AccountCreated, AccountDeleted, AccountDefaultChanged,
		TransactionCreated, TransactionsDeleted, BudgetUpdated:
		return true
	}
	return false
}

// LedgerEvent is published after a unit of work commits. It carries ids only;
// consumers read current state from the store.
type LedgerEvent struct {
	Type           EventType `json:"type"`
	UserID         string    `json:"user_id"`
	AccountID      string    `json:"account_id,omitempty"`
	TransactionIDs []string  `json:"transaction_ids,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewLedgerEvent(t EventType, userID, accountID string, transactionIDs ...string) *LedgerEvent {
	return &LedgerEvent{
		Type:           t,
		UserID:         userID,
		AccountID:      accountID,
		TransactionIDs: transactionIDs,
		Timestamp:      time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown types.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if !ev.Type.IsValid() {
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.UserID == "" {
		return nil, fmt.Errorf("event %s has no user_id", ev.Type)
	}
	return &ev, nil
}
