//go:build integration

package kafka_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"courier/internal/platform/config"
	"courier/internal/platform/kafka"
	"courier/internal/platform/outbox"
	"courier/pkg/testutil/containers"
)

func TestProducerPublishesKeyedMessages(t *testing.T) {
	broker := containers.GetManager().GetRedpanda(t).Broker
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.KafkaConfig{
		Brokers:           []string{broker},
		TopicPrefix:       "it.",
		Partitions:        3,
		ReplicationFactor: 1,
	}
	producer, err := kafka.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, producer.Ping(ctx))
	require.NoError(t, producer.EnsureTopics(ctx, "delivery"))
	require.NoError(t, producer.EnsureTopics(ctx, "delivery"), "existing topics are accepted")

	topic := producer.Topic("delivery")
	assert.Equal(t, "it.delivery", topic)

	messages := []outbox.Message{
		{Topic: topic, Key: "d-1", Value: []byte(`{"version":0}`), Headers: map[string]string{"event_type": "DeliveryCreated"}},
		{Topic: topic, Key: "d-1", Value: []byte(`{"version":1}`), Headers: map[string]string{"event_type": "DeliveryAssigned"}},
		{Topic: topic, Key: "d-2", Value: []byte(`{"version":0}`), Headers: map[string]string{"event_type": "DeliveryCreated"}},
	}
	for i, err := range producer.Publish(ctx, messages) {
		require.NoError(t, err, "message %d", i)
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) < len(messages) {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}

	var d1 []string
	partitions := map[string]int32{}
	for _, r := range records {
		key := string(r.Key)
		if p, ok := partitions[key]; ok {
			assert.Equal(t, p, r.Partition, "one aggregate stays on one partition")
		}
		partitions[key] = r.Partition
		if key == "d-1" {
			for _, h := range r.Headers {
				if h.Key == "event_type" {
					d1 = append(d1, string(h.Value))
				}
			}
		}
	}
	assert.Equal(t, []string{"DeliveryCreated", "DeliveryAssigned"}, d1)
}
