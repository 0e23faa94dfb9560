// Package domain holds identifier types shared across bounded contexts.
//
// Aggregate identifiers are UUID-backed and distinct types so a DeliveryID can
// never be handed to a payment command. Order and user references are soft
// references owned by other systems, so they stay opaque strings.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "courier/pkg/domain-errors"
)

type (
	DeliveryID uuid.UUID
	PaymentID  uuid.UUID
)

// OrderID references an order owned outside this core.
type OrderID string

// UserID references the paying user, owned outside this core.
type UserID string

func NewDeliveryID() DeliveryID { return DeliveryID(uuid.New()) }
func NewPaymentID() PaymentID   { return PaymentID(uuid.New()) }

func (id DeliveryID) String() string { return uuid.UUID(id).String() }
func (id DeliveryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) String() string  { return uuid.UUID(id).String() }
func (id PaymentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func (id OrderID) String() string { return string(id) }
func (id OrderID) IsZero() bool   { return strings.TrimSpace(string(id)) == "" }
func (id UserID) String() string  { return string(id) }
func (id UserID) IsZero() bool    { return strings.TrimSpace(string(id)) == "" }

func ParseDeliveryID(s string) (DeliveryID, error) {
	u, err := parseUUID(s, "delivery")
	return DeliveryID(u), err
}

func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID(s, "payment")
	return PaymentID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be nil")
	}
	return u, nil
}

func (id DeliveryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id PaymentID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *DeliveryID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *PaymentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
