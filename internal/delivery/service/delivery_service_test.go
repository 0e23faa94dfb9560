package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"courier/internal/delivery/models"
	"courier/internal/eventstore"
	"courier/internal/eventstore/mocks"
	"courier/internal/platform/metrics"
	"courier/internal/snapshot"
	id "courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	cmdctx "courier/pkg/testutil"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type DeliveryServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *eventstore.InMemoryStore
	metrics *metrics.Metrics
	service *Service
}

func TestDeliveryServiceSuite(t *testing.T) {
	suite.Run(t, new(DeliveryServiceSuite))
}

func (s *DeliveryServiceSuite) SetupTest() {
	s.ctx = cmdctx.CommandContext(t0, "req-1", "dispatcher-9")
	s.store = eventstore.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, WithMetrics(s.metrics))
}

func (s *DeliveryServiceSuite) create() models.State {
	state, err := s.service.CreateDelivery(s.ctx, CreateDeliveryRequest{
		OrderID:         "order-1",
		PickupAddress:   "A St",
		DeliveryAddress: "B St",
	})
	s.Require().NoError(err)
	return state
}

func (s *DeliveryServiceSuite) TestLifecycleScenario() {
	created := s.create()
	s.Equal(models.StatusPending, created.Status)
	s.Equal(int64(0), created.Version)
	s.Equal(id.OrderID("order-1"), created.OrderID)

	assigned, err := s.service.AssignDelivery(s.ctx, created.ID, "courier-7")
	s.Require().NoError(err)
	s.Equal(models.StatusAssigned, assigned.Status)
	s.Equal(int64(1), assigned.Version)

	moving, err := s.service.UpdateDeliveryLocation(s.ctx, created.ID, -33.44, -70.65)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, moving.Status)
	s.Equal(int64(2), moving.Version)
	s.Equal(&models.Location{Latitude: -33.44, Longitude: -70.65}, moving.CurrentLocation)

	done, err := s.service.CompleteDelivery(s.ctx, created.ID, nil)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, done.Status)
	s.Equal(int64(3), done.Version)
	s.Require().NotNil(done.ActualDeliveryTime)
	s.True(done.ActualDeliveryTime.Equal(t0))

	s.Run("stored versions are contiguous", func() {
		events, err := s.store.EventsForAggregate(s.ctx, models.AggregateType, created.ID.String())
		s.Require().NoError(err)
		s.Require().Len(events, 4)
		for i, evt := range events {
			s.Equal(int64(i), evt.Version)
			s.Equal("req-1", evt.Metadata["request_id"])
			s.Equal("dispatcher-9", evt.Metadata["actor_id"])
		}
		s.Equal("complete", events[3].Metadata["command"])
	})

	s.Run("returned state equals a fresh replay", func() {
		replayed, err := s.service.GetDelivery(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(done, replayed)
	})

	s.Equal(4.0, testutil.ToFloat64(s.metrics.CommandsTotal.WithLabelValues("delivery", "create", "ok"))+
		testutil.ToFloat64(s.metrics.CommandsTotal.WithLabelValues("delivery", "assign", "ok"))+
		testutil.ToFloat64(s.metrics.CommandsTotal.WithLabelValues("delivery", "update_location", "ok"))+
		testutil.ToFloat64(s.metrics.CommandsTotal.WithLabelValues("delivery", "complete", "ok")))
}

func (s *DeliveryServiceSuite) TestCreateValidation() {
	tests := []struct {
		name string
		req  CreateDeliveryRequest
	}{
		{"missing order", CreateDeliveryRequest{PickupAddress: "A", DeliveryAddress: "B"}},
		{"missing pickup", CreateDeliveryRequest{OrderID: "o", DeliveryAddress: "B"}},
		{"blank dropoff", CreateDeliveryRequest{OrderID: "o", PickupAddress: "A", DeliveryAddress: "  "}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.CreateDelivery(s.ctx, tt.req)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
	s.Equal(0, s.store.Len())
}

func (s *DeliveryServiceSuite) TestCreateKeepsOptionalFields() {
	eta := t0.Add(45 * time.Minute)
	state, err := s.service.CreateDelivery(s.ctx, CreateDeliveryRequest{
		OrderID:               "order-2",
		PickupAddress:         "A St",
		DeliveryAddress:       "B St",
		EstimatedDeliveryTime: &eta,
		Notes:                 "leave at door",
	})
	s.Require().NoError(err)
	s.Equal("leave at door", state.Notes)
	s.Require().NotNil(state.EstimatedDeliveryTime)
	s.True(state.EstimatedDeliveryTime.Equal(eta))
}

func (s *DeliveryServiceSuite) TestUnknownDeliveryIsNotFound() {
	missing := id.NewDeliveryID()

	_, err := s.service.AssignDelivery(s.ctx, missing, "courier-7")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)

	_, err = s.service.GetDelivery(s.ctx, missing)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)

	s.Equal(0, s.store.Len())
}

func (s *DeliveryServiceSuite) TestInputValidation() {
	created := s.create()

	_, err := s.service.AssignDelivery(s.ctx, created.ID, " ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.UpdateDeliveryStatus(s.ctx, created.ID, "lost")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.UpdateDeliveryLocation(s.ctx, created.ID, 91, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	latest, err := s.store.LatestVersion(s.ctx, models.AggregateType, created.ID.String())
	s.Require().NoError(err)
	s.Equal(int64(0), latest)
}

func (s *DeliveryServiceSuite) TestTransitions() {
	s.Run("completed delivery cannot be reassigned", func() {
		created := s.create()
		_, err := s.service.AssignDelivery(s.ctx, created.ID, "courier-7")
		s.Require().NoError(err)
		_, err = s.service.CompleteDelivery(s.ctx, created.ID, nil)
		s.Require().NoError(err)

		_, err = s.service.AssignDelivery(s.ctx, created.ID, "courier-8")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation), "got %v", err)

		_, err = s.service.CancelDelivery(s.ctx, created.ID, "too late")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation), "got %v", err)
	})

	s.Run("pending delivery cannot be tracked or completed", func() {
		created := s.create()
		_, err := s.service.UpdateDeliveryLocation(s.ctx, created.ID, 1, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation), "got %v", err)
		_, err = s.service.CompleteDelivery(s.ctx, created.ID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation), "got %v", err)
	})

	s.Run("cancel records the reason", func() {
		created := s.create()
		state, err := s.service.CancelDelivery(s.ctx, created.ID, " customer unreachable ")
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, state.Status)
		s.Equal("customer unreachable", state.CancellationReason)
	})

	s.Run("status override follows the table", func() {
		created := s.create()
		state, err := s.service.UpdateDeliveryStatus(s.ctx, created.ID, "assigned")
		s.Require().NoError(err)
		s.Equal(models.StatusAssigned, state.Status)
		state, err = s.service.UpdateDeliveryStatus(s.ctx, created.ID, "pending")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, state.Status)
		_, err = s.service.UpdateDeliveryStatus(s.ctx, created.ID, "completed")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation), "got %v", err)
	})

	s.Run("permissive mode accepts any order", func() {
		permissive := New(s.store, WithPermissiveTransitions())
		created := s.create()
		actual := t0.Add(-time.Hour)
		state, err := permissive.CompleteDelivery(s.ctx, created.ID, &actual)
		s.Require().NoError(err)
		state, err = permissive.AssignDelivery(s.ctx, created.ID, "courier-7")
		s.Require().NoError(err)
		s.Equal(models.StatusAssigned, state.Status)
		s.True(state.ActualDeliveryTime.Equal(actual))
		state, err = permissive.UpdateDeliveryStatus(s.ctx, created.ID, "cancelled")
		s.Require().NoError(err)
		s.Equal(int64(3), state.Version)
	})
}

func (s *DeliveryServiceSuite) TestSnapshotsDoNotChangeResults() {
	snaps := snapshot.NewInMemoryStore()
	withSnaps := New(s.store, WithSnapshots(snaps, 2))

	created, err := withSnaps.CreateDelivery(s.ctx, CreateDeliveryRequest{
		OrderID: "order-3", PickupAddress: "A St", DeliveryAddress: "B St",
	})
	s.Require().NoError(err)
	_, err = withSnaps.AssignDelivery(s.ctx, created.ID, "courier-7")
	s.Require().NoError(err)

	snap, err := snaps.Load(s.ctx, models.AggregateType, created.ID.String())
	s.Require().NoError(err)
	s.Equal(int64(1), snap.Version)

	_, err = withSnaps.UpdateDeliveryLocation(s.ctx, created.ID, 10, 10)
	s.Require().NoError(err)

	fromSnapshot, err := withSnaps.GetDelivery(s.ctx, created.ID)
	s.Require().NoError(err)
	fromLog, err := s.service.GetDelivery(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(fromLog, fromSnapshot)

	s.Run("unreadable snapshot falls back to the log", func() {
		s.Require().NoError(snaps.Save(s.ctx, snapshot.Snapshot{
			AggregateType: models.AggregateType,
			AggregateID:   created.ID.String(),
			Version:       2,
			State:         json.RawMessage(`{"version":"two"}`),
		}))
		state, err := withSnaps.GetDelivery(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(fromLog, state)
	})
}

func TestDeliveryServiceStoreFailures(t *testing.T) {
	deliveryID := id.DeliveryID(uuid.MustParse("6f1c2a4e-2b1d-4c1e-9a55-0d7f4c3b8a10"))
	createdPayload := `{"delivery_id":"6f1c2a4e-2b1d-4c1e-9a55-0d7f4c3b8a10","order_id":"order-1","pickup_address":"A St","delivery_address":"B St"}`
	stream := []eventstore.Event{{
		ID:            "evt-0",
		AggregateID:   deliveryID.String(),
		AggregateType: eventstore.AggregateDelivery,
		Type:          models.TypeDeliveryCreated,
		Version:       0,
		Payload:       json.RawMessage(createdPayload),
		CreatedAt:     t0,
	}}
	ctx := cmdctx.CommandContext(t0, "", "")

	t.Run("append conflict surfaces as conflict", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		m := metrics.New(prometheus.NewRegistry())
		svc := New(store, WithMetrics(m))

		store.EXPECT().EventsForAggregate(gomock.Any(), eventstore.AggregateDelivery, deliveryID.String()).Return(stream, nil)
		store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, evt eventstore.NewEvent) (eventstore.Event, error) {
				assert.Equal(t, int64(1), evt.Version)
				return eventstore.Event{}, &eventstore.ConflictError{
					AggregateType: evt.AggregateType, AggregateID: evt.AggregateID, Expected: 1, Actual: 2,
				}
			})

		_, err := svc.AssignDelivery(ctx, deliveryID, "courier-7")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.AppendConflicts.WithLabelValues("delivery")))
	})

	t.Run("retry reloads the stream", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		svc := New(store)

		assigned := eventstore.Event{
			ID: "evt-1", AggregateID: deliveryID.String(), AggregateType: eventstore.AggregateDelivery,
			Type: models.TypeDeliveryAssigned, Version: 1,
			Payload: json.RawMessage(`{"delivery_person_id":"courier-1"}`), CreatedAt: t0,
		}
		gomock.InOrder(
			store.EXPECT().EventsForAggregate(gomock.Any(), gomock.Any(), gomock.Any()).Return(stream, nil),
			store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(eventstore.Event{}, &eventstore.ConflictError{Expected: 1, Actual: 2}),
			store.EXPECT().EventsForAggregate(gomock.Any(), gomock.Any(), gomock.Any()).Return(append(stream, assigned), nil),
			store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, evt eventstore.NewEvent) (eventstore.Event, error) {
					assert.Equal(t, int64(2), evt.Version)
					return eventstore.Event{Version: evt.Version, CreatedAt: evt.CreatedAt}, nil
				}),
		)

		state, err := eventstore.RetryOnConflict(ctx, 2, func(ctx context.Context) (models.State, error) {
			return svc.AssignDelivery(ctx, deliveryID, "courier-7")
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), state.Version)
		assert.Equal(t, "courier-7", state.DeliveryPersonID)
	})

	t.Run("unreachable store surfaces as unavailable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		svc := New(store)

		store.EXPECT().EventsForAggregate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.Join(errors.New("dial tcp: connection refused"), eventstore.ErrStoreUnavailable))

		_, err := svc.CancelDelivery(ctx, deliveryID, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
		assert.ErrorIs(t, err, eventstore.ErrStoreUnavailable)
	})

	t.Run("corrupt stream is never skipped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		svc := New(store)

		broken := append([]eventstore.Event{}, stream...)
		broken = append(broken, eventstore.Event{
			ID: "evt-1", AggregateID: deliveryID.String(), AggregateType: eventstore.AggregateDelivery,
			Type: "DeliveryTeleported", Version: 1, Payload: json.RawMessage(`{}`), CreatedAt: t0,
		})
		store.EXPECT().EventsForAggregate(gomock.Any(), gomock.Any(), gomock.Any()).Return(broken, nil)

		_, err := svc.CompleteDelivery(ctx, deliveryID, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCorruptEvent))
		var corrupt *eventstore.CorruptEventError
		require.ErrorAs(t, err, &corrupt)
		assert.Equal(t, "evt-1", corrupt.EventID)
	})
}
