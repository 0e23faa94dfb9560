// Package projector rebuilds the payment read model and cascades payment
// outcomes onto orders.
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

	"courier/internal/eventstore"
	"courier/internal/payment/models"
	"courier/internal/projection"
	id "courier/pkg/domain"
)

const Name = "payments"

type EventReader interface {
	EventsByAggregateType(ctx context.Context, aggregateType eventstore.AggregateType) ([]eventstore.Event, error)
	EventsForAggregates(ctx context.Context, aggregateType eventstore.AggregateType, aggregateIDs []string) ([]eventstore.Event, error)
}

type ReadModelStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertPayment(ctx context.Context, row projection.PaymentRow) error
	SetOrderPaymentStatus(ctx context.Context, orderID, status, source string, at time.Time) error
}

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
		parallelism: 8,
		logger:      slog.Default(),
		tracer:      otel.Tracer("courier/payment/projector"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProjectPayments replays every payment stream.
func (p *Projector) ProjectPayments(ctx context.Context) (projection.Result, error) {
	ctx, span := p.tracer.Start(ctx, "payment.project_all")
	defer span.End()

	events, err := p.events.EventsByAggregateType(ctx, models.AggregateType)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return projection.Result{}, fmt.Errorf("read payment events: %w", err)
	}
	return p.project(ctx, span, events)
}

// ProjectPayment replays only the listed payments.
func (p *Projector) ProjectPayment(ctx context.Context, paymentIDs ...id.PaymentID) (projection.Result, error) {
	ctx, span := p.tracer.Start(ctx, "payment.project")
	defer span.End()

	ids := make([]string, len(paymentIDs))
	for i, paymentID := range paymentIDs {
		ids[i] = paymentID.String()
	}
	events, err := p.events.EventsForAggregates(ctx, models.AggregateType, ids)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return projection.Result{}, fmt.Errorf("read payment events: %w", err)
	}
	return p.project(ctx, span, events)
}

func (p *Projector) project(ctx context.Context, span trace.Span, events []eventstore.Event) (projection.Result, error) {
	groups := projection.GroupByAggregate(events)
	span.SetAttributes(attribute.Int("projection.groups", len(groups)))

	result, err := projection.ForEachGroup(ctx, groups, p.parallelism, func(ctx context.Context, group []eventstore.Event) error {
		err := p.projectGroup(ctx, group)
		if err != nil {
			p.logger.ErrorContext(ctx, "skipping payment stream",
				"aggregate_id", group[0].AggregateID, "events", len(group), "error", err)
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%d payment streams failed", result.Failed))
	}
	return result, err
}

func (p *Projector) projectGroup(ctx context.Context, group []eventstore.Event) error {
	state, err := models.Replay(group)
	if err != nil {
		return err
	}
	return p.store.InTx(ctx, func(ctx context.Context) error {
		if err := p.store.UpsertPayment(ctx, toRow(state)); err != nil {
			return err
		}
		if status, ok := cascadeStatus(state.Status); ok {
			return p.store.SetOrderPaymentStatus(ctx, state.OrderID.String(), status, state.ID.String(), state.UpdatedAt)
		}
		return nil
	})
}

// cascadeStatus maps settled payment statuses to the order payment status.
// pending and authorized payments make no cascade write.
func cascadeStatus(status models.Status) (string, bool) {
	switch status {
	case models.StatusCaptured:
		return projection.OrderPaymentPaid, true
	case models.StatusRefunded:
		return projection.OrderPaymentRefunded, true
	case models.StatusFailed:
		return projection.OrderPaymentFailed, true
	case models.StatusVoided:
		return projection.OrderPaymentCancelled, true
	}
	return "", false
}

func toRow(state models.State) projection.PaymentRow {
	return projection.PaymentRow{
		ID:              state.ID.String(),
		OrderID:         state.OrderID.String(),
		UserID:          state.UserID.String(),
		Amount:          state.Amount,
		Currency:        state.Currency,
		PaymentMethod:   state.PaymentMethod,
		PaymentIntentID: state.PaymentIntentID,
		ChargeID:        state.ChargeID,
		RefundID:        state.RefundID,
		RefundedAmount:  state.RefundedAmount,
		FailureReason:   state.FailureReason,
		Status:          string(state.Status),
		Metadata:        state.Metadata,
		Version:         state.Version,
		CreatedAt:       state.CreatedAt,
		UpdatedAt:       state.UpdatedAt,
	}
}
