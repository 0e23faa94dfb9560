// Package eventstore defines the append-only event log that every aggregate in
// the core is persisted to, plus its in-memory and PostgreSQL backends.
//
// Invariants every backend upholds:
//   - for one aggregate id, versions are 0..N-1 with no gaps or duplicates
//   - Append checks the expected version and writes in one atomic step
//   - appended events are never mutated or deleted
package eventstore

import (
	"bytes"
	"encoding/json"
	"maps"
	"strings"
	"time"

	dErrors "courier/pkg/domain-errors"
)

// AggregateType names an aggregate kind; projectors read by type.
type AggregateType string

const (
	AggregateDelivery AggregateType = "delivery"
	AggregatePayment  AggregateType = "payment"
)

// EventType is the discriminator stored in the type column.
type EventType string

// NewEvent is an event about to be appended. Version must equal the number of
// events already stored for AggregateID.
type NewEvent struct {
	AggregateID   string
	AggregateType AggregateType
	Type          EventType
	Version       int64
	Payload       json.RawMessage
	Metadata      map[string]string
	CreatedAt     time.Time
}

// Event is a stored, immutable event. JSON keys follow the persisted record
// shape so events can be shipped as-is to other systems.
type Event struct {
	ID            string            `json:"id"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType AggregateType     `json:"aggregate_type"`
	Type          EventType         `json:"type"`
	Version       int64             `json:"version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`

	// Position is the store-wide insertion order. Not part of the wire shape.
	Position int64 `json:"-"`
}

// Validate checks the structural requirements of an event before it reaches
// a backend.
func (e NewEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.AggregateID) == "":
		return dErrors.New(dErrors.CodeValidation, "aggregate id is required")
	case strings.TrimSpace(string(e.AggregateType)) == "":
		return dErrors.New(dErrors.CodeValidation, "aggregate type is required")
	case strings.TrimSpace(string(e.Type)) == "":
		return dErrors.New(dErrors.CodeValidation, "event type is required")
	case e.Version < 0:
		return dErrors.Newf(dErrors.CodeValidation, "event version must be non-negative, got %d", e.Version)
	case len(e.Payload) == 0 || !json.Valid(e.Payload):
		return dErrors.New(dErrors.CodeValidation, "event payload must be valid JSON")
	}
	return nil
}

// clone returns a deep copy so callers can't mutate stored state through
// shared slices or maps.
func (e Event) clone() Event {
	e.Payload = bytes.Clone(e.Payload)
	e.Metadata = maps.Clone(e.Metadata)
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	return e
}
