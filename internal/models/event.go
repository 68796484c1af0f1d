package models

import (
	"context"
	"time"
)

const (
	EventOrderCreated            = "order.created"
	EventOrderUpdated            = "order.updated"
	EventOrderCancelled          = "order.cancelled"
	EventDepositRequested        = "wallet.deposit_requested"
	EventDepositSettled          = "wallet.deposit_settled"
	EventBalanceRecalculated     = "wallet.balance_recalculated"
	EventPaymentRequestCreated   = "payment_request.created"
	EventPaymentRequestResponded = "payment_request.responded"
	EventTicketOpened            = "support.ticket_opened"
	EventTicketUpdated           = "support.ticket_updated"
)

// Event is the envelope written to the message broker.
type Event struct {
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

// EventPublisher delivers domain events after the originating write has committed.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// IdempotencyStore remembers the outcome of requests keyed by a client supplied key.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
	Unlock(ctx context.Context, scope, key string) error
}
