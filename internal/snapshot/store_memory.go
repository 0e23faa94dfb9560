package snapshot

import (
	"bytes"
	"context"
	"sync"

	"courier/internal/eventstore"
)

type key struct {
	aggregateType eventstore.AggregateType
	aggregateID   string
}

// InMemoryStore keeps snapshots in a map. Used in tests and when Redis is not
// configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	snaps map[key]Snapshot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snaps: make(map[key]Snapshot)}
}

func (s *InMemoryStore) Load(_ context.Context, aggregateType eventstore.AggregateType, aggregateID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[key{aggregateType, aggregateID}]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	snap.State = bytes.Clone(snap.State)
	return snap, nil
}

func (s *InMemoryStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{snap.AggregateType, snap.AggregateID}
	if existing, ok := s.snaps[k]; ok && existing.Version >= snap.Version {
		return nil
	}
	snap.State = bytes.Clone(snap.State)
	s.snaps[k] = snap
	return nil
}
