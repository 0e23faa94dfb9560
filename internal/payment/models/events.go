// Package models holds the Payment aggregate.
package models

import (
	"courier/internal/eventstore"
	id "courier/pkg/domain"
)

const AggregateType = eventstore.AggregatePayment

const (
	TypePaymentCreated    eventstore.EventType = "PaymentCreated"
	TypePaymentAuthorized eventstore.EventType = "PaymentAuthorized"
	TypePaymentCaptured   eventstore.EventType = "PaymentCaptured"
	TypePaymentRefunded   eventstore.EventType = "PaymentRefunded"
	TypePaymentFailed     eventstore.EventType = "PaymentFailed"
	TypePaymentVoided     eventstore.EventType = "PaymentVoided"
)

// DefaultCurrency applies when a payment is created without one.
const DefaultCurrency = "CLP"

// Event is one of the payment event payloads below.
type Event interface {
	EventType() eventstore.EventType
	isPaymentEvent()
}

type PaymentCreated struct {
	PaymentID     id.PaymentID      `json:"payment_id"`
	OrderID       id.OrderID        `json:"order_id"`
	UserID        id.UserID         `json:"user_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency,omitempty"`
	PaymentMethod string            `json:"payment_method"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type PaymentAuthorized struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type PaymentCaptured struct {
	ChargeID string `json:"charge_id"`
}

// PaymentRefunded refunds the payment. A nil Amount refunds it in full.
type PaymentRefunded struct {
	RefundID string `json:"refund_id"`
	Amount   *int64 `json:"amount,omitempty"`
}

type PaymentFailed struct {
	Reason string `json:"reason"`
}

type PaymentVoided struct{}

func (PaymentCreated) EventType() eventstore.EventType    { return TypePaymentCreated }
func (PaymentAuthorized) EventType() eventstore.EventType { return TypePaymentAuthorized }
func (PaymentCaptured) EventType() eventstore.EventType   { return TypePaymentCaptured }
func (PaymentRefunded) EventType() eventstore.EventType   { return TypePaymentRefunded }
func (PaymentFailed) EventType() eventstore.EventType     { return TypePaymentFailed }
func (PaymentVoided) EventType() eventstore.EventType     { return TypePaymentVoided }

func (PaymentCreated) isPaymentEvent()    {}
func (PaymentAuthorized) isPaymentEvent() {}
func (PaymentCaptured) isPaymentEvent()   {}
func (PaymentRefunded) isPaymentEvent()   {}
func (PaymentFailed) isPaymentEvent()     {}
func (PaymentVoided) isPaymentEvent()     {}
