// Package snapshot stores periodic copies of folded aggregate state so
// command handlers can fold only the tail of long streams. Snapshots are an
// optimization: losing one never changes a result, only the replay cost.
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"courier/internal/eventstore"
	"courier/pkg/platform/sentinel"
)

// ErrNotFound is returned by Load when no snapshot exists.
var ErrNotFound = sentinel.ErrNotFound

// Snapshot is the folded state of one aggregate at Version.
type Snapshot struct {
	AggregateType eventstore.AggregateType `json:"aggregate_type"`
	AggregateID   string                   `json:"aggregate_id"`
	Version       int64                    `json:"version"`
	State         json.RawMessage          `json:"state"`
	TakenAt       time.Time                `json:"taken_at"`
}

// Store persists snapshots. Save keeps whichever snapshot has the higher
// version, so concurrent writers never move a snapshot backwards.
type Store interface {
	Load(ctx context.Context, aggregateType eventstore.AggregateType, aggregateID string) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Due reports whether a snapshot should be taken after version was appended.
func Due(version, every int64) bool {
	return every > 0 && version > 0 && (version+1)%every == 0
}
