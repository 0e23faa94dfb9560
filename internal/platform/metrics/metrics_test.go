package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCommand("delivery", "assign", "ok", 5*time.Millisecond)
	m.ObserveCommand("delivery", "assign", "conflict", time.Millisecond)
	m.IncConflict("delivery")
	m.ObserveProjectorRun("deliveries", 3, 1, time.Second, errors.New("one bad stream"))
	m.SetOutboxBreakerOpen(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("delivery", "assign", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AppendConflicts.WithLabelValues("delivery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProjectorRuns.WithLabelValues("deliveries", "partial")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ProjectedAggregates.WithLabelValues("deliveries")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxBreakerState))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCommand("payment", "capture", "ok", time.Millisecond)
		m.IncConflict("payment")
		m.ObserveProjectorRun("payments", 0, 0, time.Second, nil)
		m.IncSnapshotSaved("payment")
		m.AddOutboxPublished(2)
		m.IncOutboxFailure()
		m.SetOutboxBreakerOpen(false)
	})
}
