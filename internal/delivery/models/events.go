// Package models holds the Delivery aggregate: its closed event vocabulary,
// the folded state and the pure fold that derives one from the other.
package models

import (
	"time"

	"courier/internal/eventstore"
	id "courier/pkg/domain"
)

const AggregateType = eventstore.AggregateDelivery

const (
	TypeDeliveryCreated         eventstore.EventType = "DeliveryCreated"
	TypeDeliveryAssigned        eventstore.EventType = "DeliveryAssigned"
	TypeDeliveryStatusChanged   eventstore.EventType = "DeliveryStatusChanged"
	TypeDeliveryLocationUpdated eventstore.EventType = "DeliveryLocationUpdated"
	TypeDeliveryCompleted       eventstore.EventType = "DeliveryCompleted"
	TypeDeliveryCancelled       eventstore.EventType = "DeliveryCancelled"
)

// Event is one of the delivery event payloads below. The unexported marker
// closes the set to this package.
type Event interface {
	EventType() eventstore.EventType
	isDeliveryEvent()
}

type DeliveryCreated struct {
	DeliveryID            id.DeliveryID `json:"delivery_id"`
	OrderID               id.OrderID    `json:"order_id"`
	PickupAddress         string        `json:"pickup_address"`
	DeliveryAddress       string        `json:"delivery_address"`
	EstimatedDeliveryTime *time.Time    `json:"estimated_delivery_time,omitempty"`
	Notes                 string        `json:"notes,omitempty"`
}

type DeliveryAssigned struct {
	DeliveryPersonID string `json:"delivery_person_id"`
}

type DeliveryStatusChanged struct {
	Status Status `json:"status"`
}

type DeliveryLocationUpdated struct {
	Location Location `json:"location"`
}

type DeliveryCompleted struct {
	ActualDeliveryTime time.Time `json:"actual_delivery_time"`
}

type DeliveryCancelled struct {
	Reason string `json:"reason,omitempty"`
}

func (DeliveryCreated) EventType() eventstore.EventType         { return TypeDeliveryCreated }
func (DeliveryAssigned) EventType() eventstore.EventType        { return TypeDeliveryAssigned }
func (DeliveryStatusChanged) EventType() eventstore.EventType   { return TypeDeliveryStatusChanged }
func (DeliveryLocationUpdated) EventType() eventstore.EventType { return TypeDeliveryLocationUpdated }
func (DeliveryCompleted) EventType() eventstore.EventType       { return TypeDeliveryCompleted }
func (DeliveryCancelled) EventType() eventstore.EventType       { return TypeDeliveryCancelled }

func (DeliveryCreated) isDeliveryEvent()         {}
func (DeliveryAssigned) isDeliveryEvent()        {}
func (DeliveryStatusChanged) isDeliveryEvent()   {}
func (DeliveryLocationUpdated) isDeliveryEvent() {}
func (DeliveryCompleted) isDeliveryEvent()       {}
func (DeliveryCancelled) isDeliveryEvent()       {}
