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

	"courier/internal/delivery/models"
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

// Service handles delivery commands. Its only side effect is appending to the
// event log; read models are the projector's job.
type Service struct {
	events        EventStore
	snapshots     snapshot.Store
	snapshotEvery int64
	permissive    bool
	newID         func() id.DeliveryID
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

// WithSnapshots loads state from store before folding the stream tail, and
// saves a fresh snapshot every `every` versions.
func WithSnapshots(store snapshot.Store, every int64) Option {
	return func(s *Service) {
		s.snapshots = store
		s.snapshotEvery = every
	}
}

// WithPermissiveTransitions accepts any status change, matching streams
// written before the transition table was enforced.
func WithPermissiveTransitions() Option {
	return func(s *Service) {
		s.permissive = true
	}
}

// WithIDGenerator overrides delivery id generation.
func WithIDGenerator(fn func() id.DeliveryID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New constructs a Service.
func New(events EventStore, opts ...Option) *Service {
	s := &Service{
		events: events,
		newID:  id.NewDeliveryID,
		logger: slog.Default(),
		tracer: otel.Tracer("courier/delivery"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// decision inspects the current state and returns the event a command emits.
type decision func(state models.State, now time.Time) (models.Event, error)

// execute runs the load, decide, append, fold cycle for an existing delivery.
func (s *Service) execute(ctx context.Context, command string, deliveryID id.DeliveryID, decide decision) (state models.State, err error) {
	ctx, finish := s.start(ctx, command, deliveryID)
	defer func() { finish(err) }()

	state, err = s.load(ctx, deliveryID)
	if err != nil {
		return models.State{}, err
	}
	if !state.Exists() {
		return models.State{}, dErrors.New(dErrors.CodeNotFound, "delivery not found")
	}
	now := requestcontext.Now(ctx).UTC()
	evt, err := decide(state, now)
	if err != nil {
		return models.State{}, err
	}
	return s.append(ctx, command, deliveryID, state, evt, now)
}

// load folds the stream, starting from a snapshot when one is available.
func (s *Service) load(ctx context.Context, deliveryID id.DeliveryID) (models.State, error) {
	if base, ok := s.loadSnapshot(ctx, deliveryID); ok {
		tail, err := s.events.EventsForAggregateAfter(ctx, models.AggregateType, deliveryID.String(), base.Version)
		if err != nil {
			return models.State{}, eventstore.DomainError(err, "load delivery events")
		}
		state, err := models.ReplayFrom(base, tail)
		if err != nil {
			return models.State{}, eventstore.DomainError(err, "replay delivery")
		}
		return state, nil
	}

	events, err := s.events.EventsForAggregate(ctx, models.AggregateType, deliveryID.String())
	if err != nil {
		return models.State{}, eventstore.DomainError(err, "load delivery events")
	}
	state, err := models.Replay(events)
	if err != nil {
		return models.State{}, eventstore.DomainError(err, "replay delivery")
	}
	return state, nil
}

func (s *Service) loadSnapshot(ctx context.Context, deliveryID id.DeliveryID) (models.State, bool) {
	if s.snapshots == nil {
		return models.State{}, false
	}
	snap, err := s.snapshots.Load(ctx, models.AggregateType, deliveryID.String())
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			s.logger.WarnContext(ctx, "delivery snapshot unavailable, replaying full stream",
				"aggregate_id", deliveryID.String(), "error", err)
		}
		return models.State{}, false
	}
	var state models.State
	if err := json.Unmarshal(snap.State, &state); err != nil || state.Version != snap.Version {
		s.logger.WarnContext(ctx, "discarding unreadable delivery snapshot",
			"aggregate_id", deliveryID.String(), "version", snap.Version, "error", err)
		return models.State{}, false
	}
	return state, true
}

func (s *Service) append(ctx context.Context, command string, deliveryID id.DeliveryID, state models.State, evt models.Event, now time.Time) (models.State, error) {
	payload, err := models.Encode(evt)
	if err != nil {
		return models.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode delivery event")
	}
	metadata := requestcontext.Metadata(ctx)
	metadata["command"] = command

	stored, err := s.events.Append(ctx, eventstore.NewEvent{
		AggregateID:   deliveryID.String(),
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
		return models.State{}, eventstore.DomainError(err, "append delivery event")
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
		s.logger.WarnContext(ctx, "failed to save delivery snapshot",
			"aggregate_id", state.ID.String(), "version", state.Version, "error", err)
		return
	}
	s.metrics.IncSnapshotSaved(string(models.AggregateType))
}

// start opens a span for command and returns the function that records its
// outcome.
func (s *Service) start(ctx context.Context, command string, deliveryID id.DeliveryID) (context.Context, func(error)) {
	began := time.Now()
	ctx, span := s.tracer.Start(ctx, "delivery."+command, trace.WithAttributes(
		attribute.String("delivery.id", deliveryID.String()),
	))
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if dErrors.HasCode(err, dErrors.CodeCorruptEvent) || dErrors.HasCode(err, dErrors.CodeUnavailable) {
				s.logger.ErrorContext(ctx, "delivery command failed",
					"command", command, "aggregate_id", deliveryID.String(), "error", err)
			}
		}
		span.End()
		s.metrics.ObserveCommand(string(models.AggregateType), command, outcome, time.Since(began))
	}
}
