package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for commands, projectors, snapshots
// and the outbox relay. All methods are nil-safe so components can run
// without metrics in tests.
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	AppendConflicts *prometheus.CounterVec

	ProjectorRuns       *prometheus.CounterVec
	ProjectorDuration   *prometheus.HistogramVec
	ProjectedAggregates *prometheus.CounterVec
	ProjectorFailures   *prometheus.CounterVec

	SnapshotsSaved *prometheus.CounterVec

	OutboxPublished    prometheus.Counter
	OutboxFailures     prometheus.Counter
	OutboxBreakerState prometheus.Gauge
}

// New creates and registers all collectors on reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_commands_total",
			Help: "Commands handled by aggregate, command and outcome",
		}, []string{"aggregate", "command", "outcome"}),

		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_command_duration_seconds",
			Help:    "Command latency including stream load and append",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"aggregate", "command"}),

		AppendConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_append_conflicts_total",
			Help: "Optimistic concurrency conflicts on append",
		}, []string{"aggregate"}),

		ProjectorRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_projector_runs_total",
			Help: "Projector runs by projector and outcome",
		}, []string{"projector", "outcome"}),

		ProjectorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_projector_duration_seconds",
			Help:    "Duration of a full projector run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"projector"}),

		ProjectedAggregates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_projected_aggregates_total",
			Help: "Aggregates upserted into read models",
		}, []string{"projector"}),

		ProjectorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_projector_failed_aggregates_total",
			Help: "Aggregate groups skipped because they failed to fold or persist",
		}, []string{"projector"}),

		SnapshotsSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_snapshots_saved_total",
			Help: "Aggregate snapshots written",
		}, []string{"aggregate"}),

		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "courier_outbox_published_total",
			Help: "Outbox entries delivered to Kafka",
		}),

		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "courier_outbox_publish_failures_total",
			Help: "Failed attempts to deliver outbox entries",
		}),

		OutboxBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courier_outbox_circuit_open",
			Help: "1 when the outbox relay circuit breaker is open",
		}),
	}
}

// ObserveCommand records one handled command.
func (m *Metrics) ObserveCommand(aggregate, command, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(aggregate, command, outcome).Inc()
	m.CommandDuration.WithLabelValues(aggregate, command).Observe(d.Seconds())
}

// IncConflict records an append that lost the version race.
func (m *Metrics) IncConflict(aggregate string) {
	if m != nil {
		m.AppendConflicts.WithLabelValues(aggregate).Inc()
	}
}

// ObserveProjectorRun records a finished projector run.
func (m *Metrics) ObserveProjectorRun(projector string, projected, failed int, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil && projected == 0 && failed == 0:
		outcome = "error"
	case failed > 0:
		outcome = "partial"
	}
	m.ProjectorRuns.WithLabelValues(projector, outcome).Inc()
	m.ProjectorDuration.WithLabelValues(projector).Observe(d.Seconds())
	m.ProjectedAggregates.WithLabelValues(projector).Add(float64(projected))
	m.ProjectorFailures.WithLabelValues(projector).Add(float64(failed))
}

// IncSnapshotSaved records a snapshot write.
func (m *Metrics) IncSnapshotSaved(aggregate string) {
	if m != nil {
		m.SnapshotsSaved.WithLabelValues(aggregate).Inc()
	}
}

// AddOutboxPublished records delivered outbox entries.
func (m *Metrics) AddOutboxPublished(n int) {
	if m != nil {
		m.OutboxPublished.Add(float64(n))
	}
}

// IncOutboxFailure records a failed publish attempt.
func (m *Metrics) IncOutboxFailure() {
	if m != nil {
		m.OutboxFailures.Inc()
	}
}

// SetOutboxBreakerOpen mirrors the relay breaker position.
func (m *Metrics) SetOutboxBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.OutboxBreakerState.Set(1)
		return
	}
	m.OutboxBreakerState.Set(0)
}
