package projection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestInMemoryStore_OrderCascades(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Order(ctx, "order-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetOrderPaymentStatus(ctx, "order-1", OrderPaymentPaid, "p-1", t0.Add(time.Minute)))
	order, err := store.Order(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, OrderRow{
		ID:            "order-1",
		Status:        OrderStatusPending,
		PaymentStatus: OrderPaymentPaid,
		UpdatedAt:     t0.Add(time.Minute),
	}, order)

	// An older delivery cascade still sets its column but never moves
	// updated_at backwards.
	require.NoError(t, store.SetOrderStatus(ctx, "order-1", OrderStatusDelivered, "d-1", t0))
	order, err = store.Order(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusDelivered, order.Status)
	assert.Equal(t, OrderPaymentPaid, order.PaymentStatus)
	assert.Equal(t, t0.Add(time.Minute), order.UpdatedAt)
}

func TestInMemoryStore_OrderCascadeKeepsNewestStamp(t *testing.T) {
	ctx := context.Background()

	t.Run("older cascade loses whatever the write order", func(t *testing.T) {
		for _, order := range [][]string{{"p-old", "p-new"}, {"p-new", "p-old"}} {
			store := NewInMemoryStore()
			writes := map[string]func() error{
				"p-old": func() error {
					return store.SetOrderPaymentStatus(ctx, "order-1", OrderPaymentFailed, "p-old", t0)
				},
				"p-new": func() error {
					return store.SetOrderPaymentStatus(ctx, "order-1", OrderPaymentPaid, "p-new", t0.Add(time.Minute))
				},
			}
			for _, source := range order {
				require.NoError(t, writes[source]())
			}
			got, err := store.Order(ctx, "order-1")
			require.NoError(t, err)
			assert.Equal(t, OrderPaymentPaid, got.PaymentStatus, "write order %v", order)
			assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)
		}
	})

	t.Run("equal times break on source id", func(t *testing.T) {
		for _, order := range [][]string{{"d-a", "d-b"}, {"d-b", "d-a"}} {
			store := NewInMemoryStore()
			statuses := map[string]string{"d-a": OrderStatusDelivered, "d-b": OrderStatusCancelled}
			for _, source := range order {
				require.NoError(t, store.SetOrderStatus(ctx, "order-1", statuses[source], source, t0))
			}
			got, err := store.Order(ctx, "order-1")
			require.NoError(t, err)
			assert.Equal(t, OrderStatusCancelled, got.Status, "write order %v", order)
		}
	})

	t.Run("same source rewrites its own column", func(t *testing.T) {
		store := NewInMemoryStore()
		require.NoError(t, store.SetOrderPaymentStatus(ctx, "order-1", OrderPaymentPaid, "p-1", t0))
		require.NoError(t, store.SetOrderPaymentStatus(ctx, "order-1", OrderPaymentRefunded, "p-1", t0))
		got, err := store.Order(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, OrderPaymentRefunded, got.PaymentStatus)
	})
}

func TestInMemoryStore_LocationsAreKeyedByVersion(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	for range 2 {
		require.NoError(t, store.UpsertLocation(ctx, LocationRow{DeliveryID: "d-1", Version: 3, Latitude: 2, Longitude: 2, RecordedAt: t0}))
		require.NoError(t, store.UpsertLocation(ctx, LocationRow{DeliveryID: "d-1", Version: 2, Latitude: 1, Longitude: 1, RecordedAt: t0}))
	}
	require.NoError(t, store.UpsertLocation(ctx, LocationRow{DeliveryID: "d-2", Version: 2, RecordedAt: t0}))

	rows, err := store.Locations(ctx, "d-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].Version)
	assert.Equal(t, int64(3), rows[1].Version)

	_, locations, _, _ := store.Counts()
	assert.Equal(t, 3, locations)
}

func TestInMemoryStore_PaymentRowsAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	refunded := int64(500)
	row := PaymentRow{ID: "p-1", Metadata: map[string]string{"channel": "web"}, RefundedAmount: &refunded}
	require.NoError(t, store.UpsertPayment(ctx, row))
	row.Metadata["channel"] = "mutated"
	refunded = 1

	got, err := store.Payment(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "web", got.Metadata["channel"])
	assert.Equal(t, int64(500), *got.RefundedAmount)
}
