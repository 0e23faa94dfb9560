package models

import (
	"fmt"
	"time"

	id "courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
)

// Status is the delivery lifecycle position.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus validates a status received from a caller.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown delivery status %q", s)
}

// IsTerminal reports whether the delivery is retired.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// NewLocation rejects coordinates outside the valid ranges.
func NewLocation(lat, lng float64) (Location, error) {
	if lat < -90 || lat > 90 {
		return Location{}, dErrors.Newf(dErrors.CodeValidation, "latitude %v out of range", lat)
	}
	if lng < -180 || lng > 180 {
		return Location{}, dErrors.Newf(dErrors.CodeValidation, "longitude %v out of range", lng)
	}
	return Location{Latitude: lat, Longitude: lng}, nil
}

func (l Location) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.Latitude, l.Longitude)
}

// State is the folded view of one delivery stream. It is derived data and is
// always reconstructible from the events.
type State struct {
	ID                    id.DeliveryID `json:"id"`
	OrderID               id.OrderID    `json:"order_id"`
	DeliveryPersonID      string        `json:"delivery_person_id,omitempty"`
	PickupAddress         string        `json:"pickup_address"`
	DeliveryAddress       string        `json:"delivery_address"`
	CurrentLocation       *Location     `json:"current_location,omitempty"`
	EstimatedDeliveryTime *time.Time    `json:"estimated_delivery_time,omitempty"`
	ActualDeliveryTime    *time.Time    `json:"actual_delivery_time,omitempty"`
	Notes                 string        `json:"notes,omitempty"`
	CancellationReason    string        `json:"cancellation_reason,omitempty"`
	Status                Status        `json:"status"`
	Version               int64         `json:"version"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

// Empty is the state before any event; the create event brings it to version 0.
func Empty() State {
	return State{Version: -1}
}

// Exists reports whether the create event has been folded.
func (s State) Exists() bool {
	return s.Version >= 0
}

// Apply folds one event into the state. It is pure: no I/O, and the same
// inputs always produce the same output. occurredAt is the event's created_at.
func (s State) Apply(evt Event, occurredAt time.Time) State {
	switch e := evt.(type) {
	case DeliveryCreated:
		s.ID = e.DeliveryID
		s.OrderID = e.OrderID
		s.PickupAddress = e.PickupAddress
		s.DeliveryAddress = e.DeliveryAddress
		s.EstimatedDeliveryTime = copyTime(e.EstimatedDeliveryTime)
		s.Notes = e.Notes
		s.Status = StatusPending
		s.CreatedAt = occurredAt
	case DeliveryAssigned:
		s.DeliveryPersonID = e.DeliveryPersonID
		s.Status = StatusAssigned
	case DeliveryStatusChanged:
		s.Status = e.Status
	case DeliveryLocationUpdated:
		loc := e.Location
		s.CurrentLocation = &loc
		if s.Status == StatusAssigned {
			s.Status = StatusInProgress
		}
	case DeliveryCompleted:
		at := e.ActualDeliveryTime
		s.ActualDeliveryTime = &at
		s.Status = StatusCompleted
	case DeliveryCancelled:
		s.CancellationReason = e.Reason
		s.Status = StatusCancelled
	}
	s.Version++
	s.UpdatedAt = occurredAt
	return s
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
