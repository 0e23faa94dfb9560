// Package app is the composition root: it builds stores, services,
// projectors and background workers from Config and runs them together.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	deliveryprojector "courier/internal/delivery/projector"
	deliverysvc "courier/internal/delivery/service"
	"courier/internal/eventstore"
	paymentprojector "courier/internal/payment/projector"
	paymentsvc "courier/internal/payment/service"
	"courier/internal/platform/config"
	"courier/internal/platform/httpserver"
	"courier/internal/platform/kafka"
	"courier/internal/platform/metrics"
	"courier/internal/platform/outbox"
	"courier/internal/platform/postgres"
	redisclient "courier/internal/platform/redis"
	"courier/internal/projection"
	"courier/internal/snapshot"
	httptransport "courier/internal/transport/http"
	"courier/pkg/platform/circuit"
)

// App holds the wired process. Deliveries and Payments are the command
// entry points for embedding callers.
type App struct {
	Deliveries *deliverysvc.Service
	Payments   *paymentsvc.Service
	Events     eventstore.Store
	ReadModels projection.Store
	Scheduler  *projection.Scheduler
	Router     http.Handler

	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	relay    *outbox.Relay
	closers  []func()
}

// New builds the App. An empty DATABASE_URL selects in-memory stores, an
// empty REDIS_URL in-memory snapshots, and no KAFKA_BROKERS disables the
// outbox relay.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	var checks []httptransport.Option
	db, err := a.openDatabase(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if db != nil {
		checks = append(checks, httptransport.WithHealthCheck("postgres", db.PingContext))
	}

	snapshots, redisHealth, err := a.openSnapshots(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if redisHealth != nil {
		checks = append(checks, httptransport.WithHealthCheck("redis", redisHealth))
	}

	deliveryOpts := []deliverysvc.Option{
		deliverysvc.WithLogger(logger),
		deliverysvc.WithMetrics(m),
		deliverysvc.WithSnapshots(snapshots, cfg.Snapshot.Every),
	}
	paymentOpts := []paymentsvc.Option{
		paymentsvc.WithLogger(logger),
		paymentsvc.WithMetrics(m),
		paymentsvc.WithSnapshots(snapshots, cfg.Snapshot.Every),
	}
	if !cfg.StrictTransitions {
		logger.Warn("status transition checks disabled")
		deliveryOpts = append(deliveryOpts, deliverysvc.WithPermissiveTransitions())
		paymentOpts = append(paymentOpts, paymentsvc.WithPermissiveTransitions())
	}
	a.Deliveries = deliverysvc.New(a.Events, deliveryOpts...)
	a.Payments = paymentsvc.New(a.Events, paymentOpts...)

	deliveries := deliveryprojector.New(a.Events, a.ReadModels,
		deliveryprojector.WithLogger(logger),
		deliveryprojector.WithParallelism(cfg.Projector.Parallelism),
	)
	payments := paymentprojector.New(a.Events, a.ReadModels,
		paymentprojector.WithLogger(logger),
		paymentprojector.WithParallelism(cfg.Projector.Parallelism),
	)
	a.Scheduler = projection.NewScheduler(cfg.Projector.Interval,
		projection.WithSchedulerLogger(logger),
		projection.WithSchedulerMetrics(m),
	)
	a.Scheduler.Register(deliveryprojector.Name, deliveries.ProjectDeliveries)
	a.Scheduler.Register(paymentprojector.Name, payments.ProjectPayments)

	if db != nil {
		producer, err := kafka.New(cfg.Kafka, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if producer != nil {
			a.closers = append(a.closers, producer.Close)
			if err := producer.EnsureTopics(ctx, string(eventstore.AggregateDelivery), string(eventstore.AggregatePayment)); err != nil {
				a.Close()
				return nil, fmt.Errorf("provision kafka topics: %w", err)
			}
			checks = append(checks, httptransport.WithHealthCheck("kafka", producer.Ping))
			a.relay = outbox.NewRelay(outbox.NewPostgresStore(db), producer, producer.Topic,
				outbox.WithLogger(logger),
				outbox.WithMetrics(m),
				outbox.WithBreaker(circuit.New("outbox")),
				outbox.WithBatchSize(cfg.Outbox.BatchSize),
				outbox.WithPollInterval(cfg.Outbox.PollInterval),
			)
		}
	}

	handler := httptransport.NewHandler(a.Scheduler, append(checks, httptransport.WithLogger(logger))...)
	a.Router = httptransport.NewRouter(handler, a.registry, cfg.Server.AdminToken)
	return a, nil
}

func (a *App) openDatabase(ctx context.Context) (*sql.DB, error) {
	if a.cfg.Database.URL == "" {
		a.logger.Warn("DATABASE_URL not set, using in-memory event and read-model stores")
		a.Events = eventstore.NewInMemoryStore()
		a.ReadModels = projection.NewInMemoryStore()
		return nil, nil
	}
	db, err := postgres.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, err
	}
	a.Events = eventstore.NewPostgres(db)
	a.ReadModels = projection.NewPostgres(db)
	return db, nil
}

func (a *App) openSnapshots(ctx context.Context) (snapshot.Store, httptransport.HealthCheck, error) {
	client, err := redisclient.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return snapshot.NewInMemoryStore(), nil, nil
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	return snapshot.NewRedis(client.Client, a.cfg.Snapshot.TTL), client.Health, nil
}

// Run serves the ops router and runs the projector scheduler and outbox
// relay until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := httpserver.New(a.cfg.Server.Addr, a.Router)
	g.Go(func() error {
		a.logger.Info("ops server listening", "addr", a.cfg.Server.Addr)
		return httpserver.Run(ctx, srv, a.cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return ignoreCancel(a.Scheduler.Start(ctx))
	})
	if a.relay != nil {
		g.Go(func() error {
			return ignoreCancel(a.relay.Run(ctx))
		})
	}
	return g.Wait()
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
