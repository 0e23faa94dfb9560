//go:build integration

package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deliverysvc "courier/internal/delivery/service"
	"courier/internal/projection"
	cmdctx "courier/pkg/testutil"
	"courier/pkg/testutil/containers"
)

func TestBackedByPostgresRedisAndKafka(t *testing.T) {
	m := containers.GetManager()
	pg := m.GetPostgres(t)
	rc := m.GetRedis(t)
	broker := m.GetRedpanda(t).Broker
	ctx := context.Background()
	require.NoError(t, pg.Reset(ctx))
	require.NoError(t, rc.FlushAll(ctx))

	cfg := memoryConfig()
	cfg.Database.URL = pg.URL
	cfg.Database.MaxOpenConns = 5
	cfg.Redis.URL = rc.URL
	cfg.Snapshot.TTL = time.Hour
	cfg.Kafka.Brokers = []string{broker}
	cfg.Kafka.TopicPrefix = "app-it."
	cfg.Kafka.Partitions = 1
	cfg.Kafka.ReplicationFactor = 1
	a := newMemoryApp(t, cfg)
	require.NotNil(t, a.relay)

	at := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	cctx := cmdctx.CommandContext(at, "req-9", "dispatcher")
	d, err := a.Deliveries.CreateDelivery(cctx, deliverysvc.CreateDeliveryRequest{
		OrderID: "order-9", PickupAddress: "A", DeliveryAddress: "B",
	})
	require.NoError(t, err)
	_, err = a.Deliveries.AssignDelivery(cctx, d.ID, "courier-1")
	require.NoError(t, err)
	_, err = a.Deliveries.CancelDelivery(cctx, d.ID, "customer request")
	require.NoError(t, err)

	got, err := a.Deliveries.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)

	first, err := a.Scheduler.RunNow(ctx, "deliveries")
	require.NoError(t, err)
	assert.Equal(t, projection.Result{Projected: 1}, first)
	row, err := a.ReadModels.Delivery(ctx, d.ID.String())
	require.NoError(t, err)

	_, err = a.Scheduler.RunNow(ctx, "deliveries")
	require.NoError(t, err)
	again, err := a.ReadModels.Delivery(ctx, d.ID.String())
	require.NoError(t, err)
	assert.Equal(t, row, again)

	order, err := a.ReadModels.Order(ctx, "order-9")
	require.NoError(t, err)
	assert.Equal(t, projection.OrderStatusCancelled, order.Status)

	published, err := a.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, published)
	published, err = a.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, published)
}
