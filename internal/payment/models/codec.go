package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courier/internal/eventstore"
)

var errVersionGap = errors.New("version gap in stream")

func Encode(evt Event) (json.RawMessage, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	return payload, nil
}

// Decode turns a stored record back into its typed payload.
func Decode(stored eventstore.Event) (Event, error) {
	var (
		evt Event
		err error
	)
	switch stored.Type {
	case TypePaymentCreated:
		evt, err = decodeAs[PaymentCreated](stored.Payload)
	case TypePaymentAuthorized:
		evt, err = decodeAs[PaymentAuthorized](stored.Payload)
	case TypePaymentCaptured:
		evt, err = decodeAs[PaymentCaptured](stored.Payload)
	case TypePaymentRefunded:
		evt, err = decodeAs[PaymentRefunded](stored.Payload)
	case TypePaymentFailed:
		evt, err = decodeAs[PaymentFailed](stored.Payload)
	case TypePaymentVoided:
		evt, err = decodeAs[PaymentVoided](stored.Payload)
	default:
		err = fmt.Errorf("unknown payment event type %q", stored.Type)
	}
	if err != nil {
		return nil, corrupt(stored, err)
	}
	return evt, nil
}

func decodeAs[T Event](payload json.RawMessage) (T, error) {
	var evt T
	err := json.Unmarshal(payload, &evt)
	return evt, err
}

func Replay(events []eventstore.Event) (State, error) {
	return ReplayFrom(Empty(), events)
}

// ReplayFrom folds events on top of state with the same checks the delivery
// stream gets: matching aggregate type, contiguous versions, and exactly one
// PaymentCreated at the head.
func ReplayFrom(state State, events []eventstore.Event) (State, error) {
	for _, stored := range events {
		if stored.AggregateType != AggregateType {
			return state, corrupt(stored, fmt.Errorf("aggregate type %q in payment stream", stored.AggregateType))
		}
		if stored.Version != state.Version+1 {
			return state, corrupt(stored, fmt.Errorf("%w: expected version %d", errVersionGap, state.Version+1))
		}
		evt, err := Decode(stored)
		if err != nil {
			return state, err
		}
		_, isCreate := evt.(PaymentCreated)
		if isCreate == state.Exists() {
			return state, corrupt(stored, fmt.Errorf("%s at version %d", stored.Type, stored.Version))
		}
		state = state.Apply(evt, stored.CreatedAt)
	}
	return state, nil
}

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
