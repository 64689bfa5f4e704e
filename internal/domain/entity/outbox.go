package entity

import "time"

// OutboxEvent is a domain event persisted in the same transaction as the
// state change that produced it, awaiting delivery to sinks.
type OutboxEvent struct {
	ID        int64      `json:"id"`
	EventID   string     `json:"event_id"`
	RequestID string     `json:"request_id"`
	Type      string     `json:"type"`
	Payload   string     `json:"payload"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// OutboxDelivery records the outcome of one subscribed handler for one
// outbox event. A handler with a delivery record is never run again for
// that event.
type OutboxDelivery struct {
	OutboxID    int64     `json:"outbox_id"`
	Handler     string    `json:"handler"`
	Status      string    `json:"status"` // SENT or FAILED
	Error       string    `json:"error,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}
