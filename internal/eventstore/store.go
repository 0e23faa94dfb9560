//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

package eventstore

import (
	"context"
	"fmt"

	"courier/pkg/platform/sentinel"
)

// Errors every backend reports through errors.Is.
var (
	// ErrConcurrencyConflict means another writer already appended at the
	// requested version. The caller must reload and retry.
	ErrConcurrencyConflict = sentinel.ErrConflict
	// ErrCorruptEvent means a stored record could not be decoded.
	ErrCorruptEvent = sentinel.ErrCorrupt
	// ErrStoreUnavailable means the backing store could not be reached.
	ErrStoreUnavailable = sentinel.ErrUnavailable
)

// Store is the append-only event log.
type Store interface {
	// Append stores event if and only if event.Version equals the number of
	// events already stored for its aggregate.
	Append(ctx context.Context, event NewEvent) (Event, error)
	// EventsForAggregate returns one aggregate's events ascending by version.
	EventsForAggregate(ctx context.Context, aggregateType AggregateType, aggregateID string) ([]Event, error)
	// EventsForAggregateAfter returns events with version > afterVersion.
	EventsForAggregateAfter(ctx context.Context, aggregateType AggregateType, aggregateID string, afterVersion int64) ([]Event, error)
	// EventsByAggregateType returns every event of a type in insertion order.
	EventsByAggregateType(ctx context.Context, aggregateType AggregateType) ([]Event, error)
	// EventsForAggregates returns the events of the listed aggregates in insertion order.
	EventsForAggregates(ctx context.Context, aggregateType AggregateType, aggregateIDs []string) ([]Event, error)
	// LatestVersion returns count-1, or -1 when the aggregate has no events.
	LatestVersion(ctx context.Context, aggregateType AggregateType, aggregateID string) (int64, error)
}

// ConflictError details an optimistic concurrency failure.
type ConflictError struct {
	AggregateType AggregateType
	AggregateID   string
	Expected      int64
	Actual        int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s %s: expected version %d, store is at %d",
		e.AggregateType, e.AggregateID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return ErrConcurrencyConflict
}

// CorruptEventError identifies a stored event that failed to decode.
type CorruptEventError struct {
	EventID     string
	AggregateID string
	Version     int64
	Err         error
}

func (e *CorruptEventError) Error() string {
	return fmt.Sprintf("corrupt event %s (aggregate %s, version %d): %v", e.EventID, e.AggregateID, e.Version, e.Err)
}

func (e *CorruptEventError) Unwrap() []error {
	return []error{ErrCorruptEvent, e.Err}
}
