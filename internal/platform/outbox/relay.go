package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"courier/internal/platform/metrics"
	"courier/pkg/platform/circuit"
)

// Relay drains the outbox into a Publisher. Entries are published in
// insertion order; an entry is marked published only after the broker
// acknowledged it, so delivery is at-least-once.
type Relay struct {
	store     Store
	publisher Publisher
	topics    func(aggregateType string) string
	breaker   *circuit.Breaker
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		r.breaker = b
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// TopicFor returns the topic naming used by the relay: prefix followed by
// the aggregate type, e.g. "courier.delivery".
func TopicFor(prefix string) func(aggregateType string) string {
	return func(aggregateType string) string {
		return prefix + aggregateType
	}
}

func NewRelay(store Store, publisher Publisher, topics func(aggregateType string) string, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		topics:    topics,
		breaker:   circuit.New("outbox"),
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. A full batch triggers an immediate
// follow-up poll.
func (r *Relay) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			n, err := r.RunOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.ErrorContext(ctx, "outbox relay pass failed", "error", err)
			}
			next := r.interval
			if err == nil && n == r.batchSize {
				next = 0
			}
			timer.Reset(next)
		}
	}
}

// RunOnce publishes at most one batch and returns how many entries were
// published. While the breaker is open it returns without touching the
// outbox, except for one probe batch per cooldown.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		return 0, nil
	}

	var published int
	err := r.store.InTx(ctx, func(ctx context.Context) error {
		entries, err := r.store.Pending(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		messages := make([]Message, len(entries))
		for i, e := range entries {
			messages[i] = r.message(e)
		}
		results := r.publisher.Publish(ctx, messages)

		var ok []int64
		var failures []error
		// Once an entry fails, later entries of the same aggregate stay
		// pending untouched so the next pass republishes them after it.
		blocked := make(map[streamKey]bool)
		held := 0
		for i, e := range entries {
			key := streamKey{e.AggregateType, e.AggregateID}
			if blocked[key] {
				held++
				continue
			}
			var perr error
			if i < len(results) {
				perr = results[i]
			} else {
				perr = errors.New("publisher returned no result")
			}
			if perr == nil {
				ok = append(ok, e.ID)
				continue
			}
			blocked[key] = true
			failures = append(failures, fmt.Errorf("event %s: %w", e.EventID, perr))
			if err := r.store.MarkFailed(ctx, e.ID, perr.Error()); err != nil {
				return err
			}
		}
		if held > 0 {
			r.logger.WarnContext(ctx, "outbox entries held behind failed events", "held", held)
		}
		if err := r.store.MarkPublished(ctx, ok, r.now().UTC()); err != nil {
			return err
		}
		published = len(ok)
		r.record(ctx, len(ok), failures)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("relay outbox: %w", err)
	}
	return published, nil
}

type streamKey struct {
	aggregateType string
	aggregateID   string
}

func (r *Relay) message(e Entry) Message {
	return Message{
		Topic: r.topics(e.AggregateType),
		Key:   e.AggregateID,
		Value: e.Payload,
		Headers: map[string]string{
			"event_id":       e.EventID,
			"event_type":     e.EventType,
			"aggregate_type": e.AggregateType,
		},
	}
}

func (r *Relay) record(ctx context.Context, published int, failures []error) {
	r.metrics.AddOutboxPublished(published)
	for range failures {
		r.metrics.IncOutboxFailure()
	}

	var change circuit.StateChange
	if len(failures) > 0 && published == 0 {
		_, change = r.breaker.RecordFailure()
		r.logger.WarnContext(ctx, "outbox batch failed", "failed", len(failures), "error", errors.Join(failures...))
	} else if len(failures) > 0 || published > 0 {
		_, change = r.breaker.RecordSuccess()
		if len(failures) > 0 {
			r.logger.WarnContext(ctx, "outbox batch partially failed",
				"published", published, "failed", len(failures), "error", errors.Join(failures...))
		}
	}

	switch {
	case change.Opened:
		r.logger.ErrorContext(ctx, "outbox circuit opened, pausing relay", "breaker", r.breaker.Name())
	case change.Closed:
		r.logger.InfoContext(ctx, "outbox circuit closed, relay resumed", "breaker", r.breaker.Name())
	}
	r.metrics.SetOutboxBreakerOpen(r.breaker.IsOpen())
}
