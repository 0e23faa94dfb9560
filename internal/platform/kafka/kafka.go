// Package kafka wraps a franz-go client for publishing outbox messages and
// provisioning the per-aggregate topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"courier/internal/platform/config"
	"courier/internal/platform/outbox"
)

// Producer publishes outbox messages synchronously.
type Producer struct {
	client *kgo.Client
	admin  *kadm.Client
	cfg    config.KafkaConfig
	logger *slog.Logger
}

// New returns nil, nil when no brokers are configured; the outbox relay is
// not started in that case.
func New(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID("courier"),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Producer{
		client: client,
		admin:  kadm.NewClient(client),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Topic returns the topic events of aggregateType are published to.
func (p *Producer) Topic(aggregateType string) string {
	return p.cfg.TopicPrefix + aggregateType
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// EnsureTopics creates the topics for the given aggregate types. Topics that
// already exist are left untouched.
func (p *Producer) EnsureTopics(ctx context.Context, aggregateTypes ...string) error {
	topics := make([]string, len(aggregateTypes))
	for i, t := range aggregateTypes {
		topics[i] = p.Topic(t)
	}
	resp, err := p.admin.CreateTopics(ctx, p.cfg.Partitions, p.cfg.ReplicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	var errs []error
	for _, topic := range topics {
		r, ok := resp[topic]
		if !ok {
			continue
		}
		switch {
		case r.Err == nil:
			p.logger.Info("kafka topic created", "topic", topic, "partitions", p.cfg.Partitions)
		case errors.Is(r.Err, kerr.TopicAlreadyExists):
		default:
			errs = append(errs, fmt.Errorf("topic %s: %w", topic, r.Err))
		}
	}
	return errors.Join(errs...)
}

// Publish produces all messages and waits for acknowledgement. The result
// slice is aligned with messages.
func (p *Producer) Publish(ctx context.Context, messages []outbox.Message) []error {
	records := make([]*kgo.Record, len(messages))
	index := make(map[*kgo.Record]int, len(messages))
	for i, m := range messages {
		r := &kgo.Record{
			Topic: m.Topic,
			Key:   []byte(m.Key),
			Value: m.Value,
		}
		for k, v := range m.Headers {
			r.Headers = append(r.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
		records[i] = r
		index[r] = i
	}

	errs := make([]error, len(messages))
	// ProduceSync reports results in completion order.
	for _, res := range p.client.ProduceSync(ctx, records...) {
		if i, ok := index[res.Record]; ok {
			errs[i] = res.Err
		}
	}
	return errs
}

func (p *Producer) Close() {
	p.client.Close()
}
