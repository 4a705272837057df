// Package kafka carries sequence events between the sequencer and the
// analytics aggregator over segmentio/kafka-go. Producers publish JSON
// batches tagged with an event-type header; consumers hand each message to
// a MessageHandler with bounded retries and commit it once it is handled or
// given up on, so a poison message never pins a partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/resilience"
)

// ErrMalformed marks a message that can never be handled. The consumer
// skips it without retrying.
var ErrMalformed = errors.New("malformed message")

const fetchBackoff = time.Second

// Message is the decoded envelope handed to a MessageHandler.
type Message struct {
	Key       []byte
	Value     []byte
	Type      string
	Partition int
	Offset    int64
}

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, msg Message) error

// Outcomes reported to metrics.EventConsumed.
const (
	OutcomeHandled = "ok"
	OutcomeSkipped = "skipped"
)

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, m *metrics.Metrics) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable: func(err error) bool {
				return !errors.Is(err, ErrMalformed) && !errors.Is(err, context.Canceled)
			},
			OnRetry: func(int, error) {
				m.IncRetry("event-handle")
			},
		},
		metrics: m,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start fetches, handles and commits messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		raw, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-time.After(fetchBackoff):
				continue
			case <-ctx.Done():
				return c.reader.Close()
			}
		}

		if err := c.process(ctx, toMessage(raw)); err != nil {
			// Cancelled mid-handling: leave the offset for the next owner.
			return c.reader.Close()
		}
		if err := c.reader.CommitMessages(ctx, raw); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", raw.Partition,
				"offset", raw.Offset,
				"error", err,
			)
		}
	}
}

// process runs the handler with retries. It returns an error only when ctx
// ended before the message was dealt with; every other failure is logged,
// counted as skipped, and swallowed.
func (c *Consumer) process(ctx context.Context, msg Message) error {
	err := resilience.Retry(ctx, "event-handle", c.retry, func() error {
		return c.handler(ctx, msg)
	})
	switch {
	case err == nil:
		c.metrics.EventConsumed(OutcomeHandled)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		c.metrics.EventConsumed(OutcomeSkipped)
		c.logger.Error("skipping message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"type", msg.Type,
			"error", err,
		)
		return nil
	}
}

func toMessage(raw kafka.Message) Message {
	msg := Message{
		Key:       raw.Key,
		Value:     raw.Value,
		Partition: raw.Partition,
		Offset:    raw.Offset,
	}
	for _, h := range raw.Headers {
		if h.Key == HeaderEventType {
			msg.Type = string(h.Value)
		}
	}
	return msg
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T. Decode failures wrap
// ErrMalformed.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w: %w", ErrMalformed, err)
	}
	return result, nil
}
