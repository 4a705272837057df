package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/resilience"
)

// HeaderEventType carries Event.Type so consumers can route or drop
// messages without decoding the payload.
const HeaderEventType = "event-type"

// Event is the unit of data published to Kafka. Key is used for partition
// hashing, so events sharing a play id stay ordered. Value is JSON-serialised.
type Event struct {
	Key   string
	Type  string
	Value any
}

// Producer publishes JSON-encoded event batches to one topic. Writes go
// through a circuit breaker named "kafka" so a dead broker fails fast instead
// of stalling every flush for the writer's full retry budget.
type Producer struct {
	writer  *kafka.Writer
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string, m *metrics.Metrics) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{
		writer: w,
		breaker: resilience.NewCircuitBreaker("kafka", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     15 * time.Second,
			OnStateChange: func(name string, s resilience.State) {
				m.SetCircuitState(name, int(s))
			},
		}),
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// PublishBatch writes events in a single call. Nothing is written when any
// value fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages, err := encodeMessages(events)
	if err != nil {
		return err
	}
	err = p.breaker.Execute(func() error {
		return p.writer.WriteMessages(ctx, messages...)
	})
	if err != nil {
		p.logger.Error("failed to publish batch", "count", len(messages), "error", err)
		return fmt.Errorf("publishing batch to kafka: %w", err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

func encodeMessages(events []Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return nil, fmt.Errorf("marshaling event %q: %w", event.Key, err)
		}
		msg := kafka.Message{Key: []byte(event.Key), Value: value}
		if event.Type != "" {
			msg.Headers = []kafka.Header{{Key: HeaderEventType, Value: []byte(event.Type)}}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Breaker exposes the breaker guarding writes for health reporting.
func (p *Producer) Breaker() *resilience.CircuitBreaker {
	return p.breaker
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
