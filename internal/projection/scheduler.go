package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"courier/internal/platform/metrics"
	"courier/pkg/platform/sentinel"
)

// ErrUnknownProjector is returned by RunNow for names never registered.
var ErrUnknownProjector = fmt.Errorf("unknown projector: %w", sentinel.ErrNotFound)

// RunFunc is one full projector pass.
type RunFunc func(ctx context.Context) (Result, error)

// Scheduler runs registered projectors on an interval and on demand. Runs of
// the same projector never overlap: a caller arriving while a run is in
// flight shares its result.
type Scheduler struct {
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu    sync.RWMutex
	jobs  map[string]RunFunc
	group singleflight.Group
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithSchedulerMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates a scheduler. A non-positive interval disables the
// periodic loop; RunNow still works.
func NewScheduler(interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		interval: interval,
		logger:   slog.Default(),
		jobs:     make(map[string]RunFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a projector under name, replacing any previous one.
func (s *Scheduler) Register(name string, run RunFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = run
}

// Names lists registered projectors in sorted order.
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RunNow runs the named projector, joining a run already in flight.
func (s *Scheduler) RunNow(ctx context.Context, name string) (Result, error) {
	s.mu.RLock()
	run, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownProjector, name)
	}

	v, err, shared := s.group.Do(name, func() (any, error) {
		start := time.Now()
		res, err := run(ctx)
		elapsed := time.Since(start)
		s.metrics.ObserveProjectorRun(name, res.Projected, res.Failed, elapsed, err)

		attrs := []any{"projector", name, "projected", res.Projected, "failed", res.Failed, "duration", elapsed}
		switch {
		case err != nil:
			s.logger.ErrorContext(ctx, "projector run failed", append(attrs, "error", err)...)
		default:
			s.logger.InfoContext(ctx, "projector run finished", attrs...)
		}
		return res, err
	})
	if shared {
		s.logger.DebugContext(ctx, "joined in-flight projector run", "projector", name)
	}
	res, _ := v.(Result)
	return res, err
}

// RunAll runs every registered projector once, sequentially, and joins their
// errors.
func (s *Scheduler) RunAll(ctx context.Context) error {
	var errs []error
	for _, name := range s.Names() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.RunNow(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Start runs all projectors once immediately and then every interval until
// ctx is cancelled. Projector failures are logged, never fatal to the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	_ = s.RunAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.RunAll(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
