package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink produces notifications to a topic, keyed by order so that every
// message of one order lands in the same partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects a producer to brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka client")
	}
	return &KafkaSink{
		client: client,
		topic:  topic,
	}, nil
}

// Push implements Sink.
func (s *KafkaSink) Push(ctx context.Context, key string, payload []byte) error {
	rec := &kgo.Record{
		Topic:     s.topic,
		Key:       []byte(key),
		Value:     payload,
		Timestamp: time.Now().UTC(),
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return errors.Wrapf(err, "produce to %s", s.topic)
	}
	return nil
}

// Ping checks broker connectivity.
func (s *KafkaSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
