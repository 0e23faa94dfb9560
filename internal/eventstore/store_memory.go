package eventstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type streamKey struct {
	aggregateType AggregateType
	aggregateID   string
}

// InMemoryStore is the reference backend. The version check and the append
// happen under one lock, which is the in-process equivalent of the
// PostgreSQL transaction.
type InMemoryStore struct {
	mu       sync.RWMutex
	streams  map[streamKey][]Event
	log      []Event
	position int64
	clock    func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithMemoryClock sets the time used when an event arrives without CreatedAt.
func WithMemoryClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		streams: make(map[streamKey][]Event),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(ctx context.Context, event NewEvent) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{aggregateType: event.AggregateType, aggregateID: event.AggregateID}
	current := int64(len(s.streams[key]))
	if event.Version != current {
		return Event{}, &ConflictError{
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Expected:      event.Version,
			Actual:        current,
		}
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}
	s.position++
	stored := Event{
		ID:            uuid.NewString(),
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		Type:          event.Type,
		Version:       event.Version,
		Payload:       event.Payload,
		Metadata:      event.Metadata,
		CreatedAt:     createdAt.UTC(),
		Position:      s.position,
	}.clone()

	s.streams[key] = append(s.streams[key], stored)
	s.log = append(s.log, stored)
	return stored.clone(), nil
}

func (s *InMemoryStore) EventsForAggregate(ctx context.Context, aggregateType AggregateType, aggregateID string) ([]Event, error) {
	return s.EventsForAggregateAfter(ctx, aggregateType, aggregateID, -1)
}

func (s *InMemoryStore) EventsForAggregateAfter(ctx context.Context, aggregateType AggregateType, aggregateID string, afterVersion int64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[streamKey{aggregateType: aggregateType, aggregateID: aggregateID}]
	start := afterVersion + 1
	if start < 0 {
		start = 0
	}
	if start >= int64(len(stream)) {
		return []Event{}, nil
	}
	return cloneAll(stream[start:]), nil
}

func (s *InMemoryStore) EventsByAggregateType(ctx context.Context, aggregateType AggregateType) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0, len(s.log))
	for _, evt := range s.log {
		if evt.AggregateType == aggregateType {
			out = append(out, evt.clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) EventsForAggregates(ctx context.Context, aggregateType AggregateType, aggregateIDs []string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	aggregateIDs = normalizeIDs(aggregateIDs)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0)
	for _, evt := range s.log {
		if evt.AggregateType == aggregateType && slices.Contains(aggregateIDs, evt.AggregateID) {
			out = append(out, evt.clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) LatestVersion(ctx context.Context, aggregateType AggregateType, aggregateID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.streams[streamKey{aggregateType: aggregateType, aggregateID: aggregateID}])) - 1, nil
}

// Len returns the total number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

func cloneAll(events []Event) []Event {
	out := make([]Event, len(events))
	for i, evt := range events {
		out[i] = evt.clone()
	}
	return out
}
