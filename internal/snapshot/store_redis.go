package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"courier/internal/eventstore"
)

const (
	keyPrefix       = "courier:snapshot:"
	maxWatchRetries = 3
)

// RedisStore keeps one JSON snapshot per aggregate under a TTL. A snapshot
// that expires is simply rebuilt from the event log.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis creates a Redis-backed store. A zero ttl keeps snapshots forever.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(aggregateType eventstore.AggregateType, aggregateID string) string {
	return keyPrefix + string(aggregateType) + ":" + aggregateID
}

func (s *RedisStore) Load(ctx context.Context, aggregateType eventstore.AggregateType, aggregateID string) (Snapshot, error) {
	raw, err := s.client.Get(ctx, redisKey(aggregateType, aggregateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Save writes snap unless a snapshot at the same or a later version is
// already stored. The compare and the write run under WATCH.
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	k := redisKey(snap.AggregateType, snap.AggregateID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var existing Snapshot
			if json.Unmarshal(raw, &existing) == nil && existing.Version >= snap.Version {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, s.ttl)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err = s.client.Watch(ctx, txf, k)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
