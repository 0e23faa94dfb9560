package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courier/internal/eventstore"
)

var errVersionGap = errors.New("version gap in stream")

// Encode serializes an event payload for the store.
func Encode(evt Event) (json.RawMessage, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	return payload, nil
}

// Decode turns a stored record back into its typed payload. Unknown types and
// unparseable payloads are reported as corrupt, never skipped.
func Decode(stored eventstore.Event) (Event, error) {
	var (
		evt Event
		err error
	)
	switch stored.Type {
	case TypeDeliveryCreated:
		evt, err = decodeAs[DeliveryCreated](stored.Payload)
	case TypeDeliveryAssigned:
		evt, err = decodeAs[DeliveryAssigned](stored.Payload)
	case TypeDeliveryStatusChanged:
		var e DeliveryStatusChanged
		if e, err = decodeAs[DeliveryStatusChanged](stored.Payload); err == nil {
			_, err = ParseStatus(string(e.Status))
		}
		evt = e
	case TypeDeliveryLocationUpdated:
		evt, err = decodeAs[DeliveryLocationUpdated](stored.Payload)
	case TypeDeliveryCompleted:
		evt, err = decodeAs[DeliveryCompleted](stored.Payload)
	case TypeDeliveryCancelled:
		evt, err = decodeAs[DeliveryCancelled](stored.Payload)
	default:
		err = fmt.Errorf("unknown delivery event type %q", stored.Type)
	}
	if err != nil {
		return nil, corrupt(stored, err)
	}
	return evt, nil
}

func decodeAs[T Event](payload json.RawMessage) (T, error) {
	var evt T
	if err := json.Unmarshal(payload, &evt); err != nil {
		return evt, err
	}
	return evt, nil
}

// Replay folds a full stream from the empty state.
func Replay(events []eventstore.Event) (State, error) {
	return ReplayFrom(Empty(), events)
}

// ReplayFrom folds events on top of state. Events must continue the state's
// version sequence without gaps and belong to the delivery stream; the first
// event of a fresh stream must be DeliveryCreated. Command handlers and the
// projector both fold through here so the two can't diverge.
func ReplayFrom(state State, events []eventstore.Event) (State, error) {
	for _, stored := range events {
		if stored.AggregateType != AggregateType {
			return state, corrupt(stored, fmt.Errorf("aggregate type %q in delivery stream", stored.AggregateType))
		}
		if stored.Version != state.Version+1 {
			return state, corrupt(stored, fmt.Errorf("%w: expected version %d", errVersionGap, state.Version+1))
		}
		evt, err := Decode(stored)
		if err != nil {
			return state, err
		}
		_, isCreate := evt.(DeliveryCreated)
		if isCreate == state.Exists() {
			return state, corrupt(stored, fmt.Errorf("%s at version %d", stored.Type, stored.Version))
		}
		state = state.Apply(evt, stored.CreatedAt)
	}
	return state, nil
}

// Fold applies already-typed events; used by tests and by handlers folding the
// event they just built.
func Fold(state State, at time.Time, events ...Event) State {
	for _, evt := range events {
		state = state.Apply(evt, at)
	}
	return state
}

func corrupt(stored eventstore.Event, err error) error {
	return &eventstore.CorruptEventError{
		EventID:     stored.ID,
		AggregateID: stored.AggregateID,
		Version:     stored.Version,
		Err:         err,
	}
}
