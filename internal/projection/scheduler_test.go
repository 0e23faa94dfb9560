package projection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/platform/metrics"
	"courier/pkg/platform/sentinel"
)

func TestScheduler_RunNow(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := NewScheduler(0, WithSchedulerMetrics(m))
	s.Register("deliveries", func(context.Context) (Result, error) {
		return Result{Projected: 3}, nil
	})

	res, err := s.RunNow(context.Background(), "deliveries")
	require.NoError(t, err)
	assert.Equal(t, Result{Projected: 3}, res)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProjectorRuns.WithLabelValues("deliveries", "ok")))

	_, err = s.RunNow(context.Background(), "invoices")
	assert.ErrorIs(t, err, ErrUnknownProjector)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestScheduler_RunsDoNotOverlap(t *testing.T) {
	s := NewScheduler(0)

	var (
		running, maxRunning atomic.Int32
		release             = make(chan struct{})
		started             = make(chan struct{}, 8)
	)
	s.Register("payments", func(context.Context) (Result, error) {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		started <- struct{}{}
		<-release
		return Result{Projected: 1}, nil
	})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.RunNow(context.Background(), "payments")
			assert.NoError(t, err)
			assert.Equal(t, 1, res.Projected)
		}()
	}
	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestScheduler_RunAllJoinsErrors(t *testing.T) {
	s := NewScheduler(0)
	boom := errors.New("boom")
	var ran []string
	s.Register("b", func(context.Context) (Result, error) {
		ran = append(ran, "b")
		return Result{Failed: 1}, boom
	})
	s.Register("a", func(context.Context) (Result, error) {
		ran = append(ran, "a")
		return Result{}, nil
	})

	err := s.RunAll(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestScheduler_StartRunsUntilCancelled(t *testing.T) {
	s := NewScheduler(5 * time.Millisecond)
	var runs atomic.Int32
	s.Register("deliveries", func(context.Context) (Result, error) {
		runs.Add(1)
		return Result{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
