package projection

import (
	"context"
	"time"

	"courier/pkg/platform/sentinel"
)

// ErrNotFound is returned by read helpers for rows that were never projected.
var ErrNotFound = sentinel.ErrNotFound

// Store persists read models. Writers are idempotent upserts.
type Store interface {
	// InTx runs fn so that all writes it makes for one aggregate land together.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	UpsertDelivery(ctx context.Context, row DeliveryRow) error
	UpsertLocation(ctx context.Context, row LocationRow) error
	UpsertPayment(ctx context.Context, row PaymentRow) error
	// SetOrderStatus creates the order row if needed and sets its fulfilment
	// status when (at, source) is not older than the last cascade that set
	// it. source is the id of the aggregate the cascade comes from.
	// updated_at only moves forward.
	SetOrderStatus(ctx context.Context, orderID, status, source string, at time.Time) error
	// SetOrderPaymentStatus is SetOrderStatus for the payment column.
	SetOrderPaymentStatus(ctx context.Context, orderID, status, source string, at time.Time) error

	Delivery(ctx context.Context, deliveryID string) (DeliveryRow, error)
	Locations(ctx context.Context, deliveryID string) ([]LocationRow, error)
	Payment(ctx context.Context, paymentID string) (PaymentRow, error)
	Order(ctx context.Context, orderID string) (OrderRow, error)
}
