package models

import (
	"maps"
	"time"

	id "courier/pkg/domain"
)

// Status is the payment lifecycle position.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
	StatusVoided     Status = "voided"
)

func (s Status) IsTerminal() bool {
	return s == StatusRefunded || s == StatusFailed || s == StatusVoided
}

// State is the folded view of one payment stream.
type State struct {
	ID              id.PaymentID      `json:"id"`
	OrderID         id.OrderID        `json:"order_id"`
	UserID          id.UserID         `json:"user_id"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	PaymentMethod   string            `json:"payment_method"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	ChargeID        string            `json:"charge_id,omitempty"`
	RefundID        string            `json:"refund_id,omitempty"`
	RefundedAmount  *int64            `json:"refunded_amount,omitempty"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	Status          Status            `json:"status"`
	Version         int64             `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func Empty() State {
	return State{Version: -1}
}

func (s State) Exists() bool {
	return s.Version >= 0
}

// Apply folds one event. It never shares maps or pointers with evt or with
// the receiver, so earlier states stay valid.
func (s State) Apply(evt Event, occurredAt time.Time) State {
	s.Metadata = maps.Clone(s.Metadata)
	switch e := evt.(type) {
	case PaymentCreated:
		s.ID = e.PaymentID
		s.OrderID = e.OrderID
		s.UserID = e.UserID
		s.Amount = e.Amount
		s.Currency = e.Currency
		if s.Currency == "" {
			s.Currency = DefaultCurrency
		}
		s.PaymentMethod = e.PaymentMethod
		s.Metadata = maps.Clone(e.Metadata)
		s.Status = StatusPending
		s.CreatedAt = occurredAt
	case PaymentAuthorized:
		s.PaymentIntentID = e.PaymentIntentID
		s.Status = StatusAuthorized
	case PaymentCaptured:
		s.ChargeID = e.ChargeID
		s.Status = StatusCaptured
	case PaymentRefunded:
		s.RefundID = e.RefundID
		refunded := s.Amount
		if e.Amount != nil {
			refunded = *e.Amount
		}
		s.RefundedAmount = &refunded
		s.Status = StatusRefunded
	case PaymentFailed:
		s.FailureReason = e.Reason
		s.Status = StatusFailed
	case PaymentVoided:
		s.Status = StatusVoided
	}
	s.Version++
	s.UpdatedAt = occurredAt
	return s
}
