// Package projection holds the denormalized read models the projectors
// rebuild from the event log, the stores that persist them, and the scheduler
// that runs projectors.
//
// Every write here is an idempotent upsert keyed by the aggregate (or by
// aggregate and version for history rows), and every timestamp comes from an
// event, so re-running a projector over an unchanged log rewrites identical
// rows.
package projection

import (
	"maps"
	"time"
)

// Order status values written by cascades.
const (
	OrderStatusPending   = "pending"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"

	OrderPaymentPending   = "pending"
	OrderPaymentPaid      = "paid"
	OrderPaymentRefunded  = "refunded"
	OrderPaymentFailed    = "failed"
	OrderPaymentCancelled = "cancelled"
)

// DeliveryRow is the current view of one delivery.
type DeliveryRow struct {
	ID                    string
	OrderID               string
	DeliveryPersonID      string
	PickupAddress         string
	DeliveryAddress       string
	CurrentLatitude       *float64
	CurrentLongitude      *float64
	EstimatedDeliveryTime *time.Time
	ActualDeliveryTime    *time.Time
	Notes                 string
	CancellationReason    string
	Status                string
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// LocationRow is one immutable entry of a delivery's location history.
type LocationRow struct {
	DeliveryID string
	Version    int64
	Latitude   float64
	Longitude  float64
	RecordedAt time.Time
}

// PaymentRow is the current view of one payment.
type PaymentRow struct {
	ID              string
	OrderID         string
	UserID          string
	Amount          int64
	Currency        string
	PaymentMethod   string
	PaymentIntentID string
	ChargeID        string
	RefundID        string
	RefundedAmount  *int64
	FailureReason   string
	Status          string
	Metadata        map[string]string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderRow is the slice of the order read model the projectors own: the
// fulfilment status and the payment status.
type OrderRow struct {
	ID            string
	Status        string
	PaymentStatus string
	UpdatedAt     time.Time
}

// Result summarizes one projector run.
type Result struct {
	// Projected counts aggregate groups written to the read model.
	Projected int
	// Failed counts aggregate groups skipped because they could not be
	// folded or persisted.
	Failed int
}

func (r PaymentRow) clone() PaymentRow {
	r.Metadata = maps.Clone(r.Metadata)
	if r.RefundedAmount != nil {
		v := *r.RefundedAmount
		r.RefundedAmount = &v
	}
	return r
}
