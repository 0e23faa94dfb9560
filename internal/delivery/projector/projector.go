// Package projector rebuilds the delivery read models from the event log.
package projector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"courier/internal/delivery/models"
	"courier/internal/eventstore"
	"courier/internal/projection"
	id "courier/pkg/domain"
)

// Name identifies this projector to the scheduler.
const Name = "deliveries"

const defaultParallelism = 8

type EventReader interface {
	EventsByAggregateType(ctx context.Context, aggregateType eventstore.AggregateType) ([]eventstore.Event, error)
	EventsForAggregates(ctx context.Context, aggregateType eventstore.AggregateType, aggregateIDs []string) ([]eventstore.Event, error)
}

type ReadModelStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertDelivery(ctx context.Context, row projection.DeliveryRow) error
	UpsertLocation(ctx context.Context, row projection.LocationRow) error
	SetOrderStatus(ctx context.Context, orderID, status, source string, at time.Time) error
}

// Projector folds delivery streams into the deliveries, delivery_locations
// and orders read models.
type Projector struct {
	events      EventReader
	store       ReadModelStore
	parallelism int
	logger      *slog.Logger
	tracer      trace.Tracer
}

type Option func(*Projector)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		p.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Projector) {
		p.tracer = tracer
	}
}

// WithParallelism bounds how many aggregate groups are written at once.
func WithParallelism(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

func New(events EventReader, store ReadModelStore, opts ...Option) *Projector {
	p := &Projector{
		events:      events,
		store:       store,
		parallelism: defaultParallelism,
		logger:      slog.Default(),
		tracer:      otel.Tracer("courier/delivery/projector"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProjectDeliveries replays every delivery stream into the read models.
func (p *Projector) ProjectDeliveries(ctx context.Context) (projection.Result, error) {
	ctx, span := p.tracer.Start(ctx, "delivery.project_all")
	defer span.End()

	events, err := p.events.EventsByAggregateType(ctx, models.AggregateType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return projection.Result{}, fmt.Errorf("read delivery events: %w", err)
	}
	return p.project(ctx, span, events)
}

// ProjectDelivery replays only the listed deliveries.
func (p *Projector) ProjectDelivery(ctx context.Context, deliveryIDs ...id.DeliveryID) (projection.Result, error) {
	ctx, span := p.tracer.Start(ctx, "delivery.project")
	defer span.End()

	ids := make([]string, len(deliveryIDs))
	for i, deliveryID := range deliveryIDs {
		ids[i] = deliveryID.String()
	}
	events, err := p.events.EventsForAggregates(ctx, models.AggregateType, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return projection.Result{}, fmt.Errorf("read delivery events: %w", err)
	}
	return p.project(ctx, span, events)
}

func (p *Projector) project(ctx context.Context, span trace.Span, events []eventstore.Event) (projection.Result, error) {
	groups := projection.GroupByAggregate(events)
	span.SetAttributes(attribute.Int("projection.groups", len(groups)))

	result, err := projection.ForEachGroup(ctx, groups, p.parallelism, func(ctx context.Context, group []eventstore.Event) error {
		err := p.projectGroup(ctx, group)
		if err != nil {
			p.logger.ErrorContext(ctx, "skipping delivery stream",
				"aggregate_id", group[0].AggregateID, "events", len(group), "error", err)
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%d delivery streams failed", result.Failed))
	}
	return result, err
}

// projectGroup folds one stream and writes its rows in one transaction.
func (p *Projector) projectGroup(ctx context.Context, group []eventstore.Event) error {
	state, err := models.Replay(group)
	if err != nil {
		return err
	}
	locations, err := locationRows(group)
	if err != nil {
		return err
	}

	return p.store.InTx(ctx, func(ctx context.Context) error {
		if err := p.store.UpsertDelivery(ctx, toRow(state)); err != nil {
			return err
		}
		for _, row := range locations {
			if err := p.store.UpsertLocation(ctx, row); err != nil {
				return err
			}
		}
		if status, ok := cascadeStatus(state.Status); ok {
			if err := p.store.SetOrderStatus(ctx, state.OrderID.String(), status, state.ID.String(), state.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// cascadeStatus maps terminal delivery statuses to the order status they
// imply. Other statuses leave the order untouched.
func cascadeStatus(status models.Status) (string, bool) {
	switch status {
	case models.StatusCompleted:
		return projection.OrderStatusDelivered, true
	case models.StatusCancelled:
		return projection.OrderStatusCancelled, true
	}
	return "", false
}

func locationRows(group []eventstore.Event) ([]projection.LocationRow, error) {
	var rows []projection.LocationRow
	for _, stored := range group {
		if stored.Type != models.TypeDeliveryLocationUpdated {
			continue
		}
		evt, err := models.Decode(stored)
		if err != nil {
			return nil, err
		}
		loc := evt.(models.DeliveryLocationUpdated).Location
		rows = append(rows, projection.LocationRow{
			DeliveryID: stored.AggregateID,
			Version:    stored.Version,
			Latitude:   loc.Latitude,
			Longitude:  loc.Longitude,
			RecordedAt: stored.CreatedAt,
		})
	}
	return rows, nil
}

func toRow(state models.State) projection.DeliveryRow {
	row := projection.DeliveryRow{
		ID:                    state.ID.String(),
		OrderID:               state.OrderID.String(),
		DeliveryPersonID:      state.DeliveryPersonID,
		PickupAddress:         state.PickupAddress,
		DeliveryAddress:       state.DeliveryAddress,
		EstimatedDeliveryTime: state.EstimatedDeliveryTime,
		ActualDeliveryTime:    state.ActualDeliveryTime,
		Notes:                 state.Notes,
		CancellationReason:    state.CancellationReason,
		Status:                string(state.Status),
		Version:               state.Version,
		CreatedAt:             state.CreatedAt,
		UpdatedAt:             state.UpdatedAt,
	}
	if loc := state.CurrentLocation; loc != nil {
		lat, lng := loc.Latitude, loc.Longitude
		row.CurrentLatitude = &lat
		row.CurrentLongitude = &lng
	}
	return row
}
