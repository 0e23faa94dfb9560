// Package outbox relays event_outbox rows, written atomically with each
// appended event, to the message broker.
package outbox

import (
	"context"
	"time"
)

// Entry is one unpublished outbox row.
type Entry struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	Attempts      int
}

// Message is what the relay hands to a Publisher. Key keeps all events of
// one aggregate on one partition.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Store reads and settles outbox rows.
type Store interface {
	// InTx runs fn in a transaction; Pending rows stay locked until it ends.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	// Pending returns up to limit unpublished rows in insertion order,
	// skipping rows another relay holds.
	Pending(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Publisher delivers messages. The returned slice has one entry per message,
// nil on success.
type Publisher interface {
	Publish(ctx context.Context, messages []Message) []error
}
