package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/mbd888/riskproxy/internal/retry"
)

// KafkaSink publishes events as JSON to a Kafka topic. Messages are keyed by
// target so updates to one account stay ordered within a partition.
type KafkaSink struct {
	topic    string
	producer sarama.SyncProducer
	attempts int
	backoff  time.Duration
}

// NewKafkaSink connects a synchronous producer to brokers.
func NewKafkaSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaSink, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Producer.RequiredAcks = sarama.WaitForAll
		cfg.Producer.Idempotent = true
		cfg.Net.MaxOpenRequests = 1
		cfg.Producer.Retry.Max = 3
		cfg.Version = sarama.V2_8_0_0
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewKafkaSinkFromProducer(p, topic), nil
}

// NewKafkaSinkFromProducer wraps an existing producer.
func NewKafkaSinkFromProducer(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{topic: topic, producer: p, attempts: 3, backoff: 100 * time.Millisecond}
}

func (s *KafkaSink) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(ev.Target),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
			{Key: []byte("event_id"), Value: []byte(ev.ID)},
		},
		Timestamp: ev.Timestamp,
	}

	err = retry.Do(ctx, s.attempts, s.backoff, func() error {
		_, _, err := s.producer.SendMessage(msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", ev.Type, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
