package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"courier/internal/payment/models"
	"courier/internal/eventstore"
	"courier/internal/platform/metrics"
	"courier/internal/snapshot"
	id "courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/requestcontext"
)

// EventStore is the subset of the event log the handlers need.
type EventStore interface {
	Append(ctx context.Context, event eventstore.NewEvent) (eventstore.Event, error)
	EventsForAggregate(ctx context.Context, aggregateType eventstore.AggregateType, aggregateID string) ([]eventstore.Event, error)
	EventsForAggregateAfter(ctx context.Context, aggregateType eventstore.AggregateType, aggregateID string, afterVersion int64) ([]eventstore.Event, error)
}

// Service handles payment commands against the event log.
type Service struct {
	events        EventStore
	snapshots     snapshot.Store
	snapshotEvery int64
	permissive    bool
	newID         func() id.PaymentID
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithSnapshots enables snapshot loading and saves one every `every` versions.
func WithSnapshots(store snapshot.Store, every int64) Option {
	return func(s *Service) {
		s.snapshots = store
		s.snapshotEvery = every
	}
}

// WithPermissiveTransitions skips the transition table.
func WithPermissiveTransitions() Option {
	return func(s *Service) {
		s.permissive = true
	}
}

// WithIDGenerator overrides payment id generation.
func WithIDGenerator(fn func() id.PaymentID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New constructs a Service.
func New(events EventStore, opts ...Option) *Service {
	s := &Service{
		events: events,
		newID:  id.NewPaymentID,
		logger: slog.Default(),
		tracer: otel.Tracer("courier/payment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// decision inspects the current state and returns the event a command emits.
type decision func(state models.State, now time.Time) (models.Event, error)

// execute loads an existing payment, asks decide for the next event and
// appends it at the following version.
func (s *Service) execute(ctx context.Context, command string, paymentID id.PaymentID, decide decision) (state models.State, err error) {
	ctx, finish := s.start(ctx, command, paymentID)
	defer func() { finish(err) }()

	state, err = s.load(ctx, paymentID)
	if err != nil {
		return models.State{}, err
	}
	if !state.Exists() {
		return models.State{}, dErrors.New(dErrors.CodeNotFound, "payment not found")
	}
	now := requestcontext.Now(ctx).UTC()
	evt, err := decide(state, now)
	if err != nil {
		return models.State{}, err
	}
	return s.append(ctx, command, paymentID, state, evt, now)
}

// load folds the stream, starting from a snapshot when one is available.
func (s *Service) load(ctx context.Context, paymentID id.PaymentID) (models.State, error) {
	if base, ok := s.loadSnapshot(ctx, paymentID); ok {
		tail, err := s.events.EventsForAggregateAfter(ctx, models.AggregateType, paymentID.String(), base.Version)
		if err != nil {
			return models.State{}, eventstore.DomainError(err, "load payment events")
		}
		state, err := models.ReplayFrom(base, tail)
		if err != nil {
			return models.State{}, eventstore.DomainError(err, "replay payment")
		}
		return state, nil
	}

	events, err := s.events.EventsForAggregate(ctx, models.AggregateType, paymentID.String())
	if err != nil {
		return models.State{}, eventstore.DomainError(err, "load payment events")
	}
	state, err := models.Replay(events)
	if err != nil {
		return models.State{}, eventstore.DomainError(err, "replay payment")
	}
	return state, nil
}

func (s *Service) loadSnapshot(ctx context.Context, paymentID id.PaymentID) (models.State, bool) {
	if s.snapshots == nil {
		return models.State{}, false
	}
	snap, err := s.snapshots.Load(ctx, models.AggregateType, paymentID.String())
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			s.logger.WarnContext(ctx, "payment snapshot unavailable, replaying full stream",
				"aggregate_id", paymentID.String(), "error", err)
		}
		return models.State{}, false
	}
	var state models.State
	if err := json.Unmarshal(snap.State, &state); err != nil || state.Version != snap.Version {
		s.logger.WarnContext(ctx, "discarding unreadable payment snapshot",
			"aggregate_id", paymentID.String(), "version", snap.Version, "error", err)
		return models.State{}, false
	}
	return state, true
}

func (s *Service) append(ctx context.Context, command string, paymentID id.PaymentID, state models.State, evt models.Event, now time.Time) (models.State, error) {
	payload, err := models.Encode(evt)
	if err != nil {
		return models.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode payment event")
	}
	metadata := requestcontext.Metadata(ctx)
	metadata["command"] = command

	stored, err := s.events.Append(ctx, eventstore.NewEvent{
		AggregateID:   paymentID.String(),
		AggregateType: models.AggregateType,
		Type:          evt.EventType(),
		Version:       state.Version + 1,
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     now,
	})
	if err != nil {
		if errors.Is(err, eventstore.ErrConcurrencyConflict) {
			s.metrics.IncConflict(string(models.AggregateType))
		}
		return models.State{}, eventstore.DomainError(err, "append payment event")
	}

	state = state.Apply(evt, stored.CreatedAt)
	s.saveSnapshot(ctx, state)
	return state, nil
}

func (s *Service) saveSnapshot(ctx context.Context, state models.State) {
	if s.snapshots == nil || !snapshot.Due(state.Version, s.snapshotEvery) {
		return
	}
	raw, err := json.Marshal(state)
	if err == nil {
		err = s.snapshots.Save(ctx, snapshot.Snapshot{
			AggregateType: models.AggregateType,
			AggregateID:   state.ID.String(),
			Version:       state.Version,
			State:         raw,
			TakenAt:       requestcontext.Now(ctx),
		})
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to save payment snapshot",
			"aggregate_id", state.ID.String(), "version", state.Version, "error", err)
		return
	}
	s.metrics.IncSnapshotSaved(string(models.AggregateType))
}

// start opens a span for command and returns the function that records its
// outcome.
func (s *Service) start(ctx context.Context, command string, paymentID id.PaymentID) (context.Context, func(error)) {
	began := time.Now()
	ctx, span := s.tracer.Start(ctx, "payment."+command, trace.WithAttributes(
		attribute.String("payment.id", paymentID.String()),
	))
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if dErrors.HasCode(err, dErrors.CodeCorruptEvent) || dErrors.HasCode(err, dErrors.CodeUnavailable) {
				s.logger.ErrorContext(ctx, "payment command failed",
					"command", command, "aggregate_id", paymentID.String(), "error", err)
			}
		}
		span.End()
		s.metrics.ObserveCommand(string(models.AggregateType), command, outcome, time.Since(began))
	}
}
