package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
)

// Publisher delivers a batch of events. *kafka.Producer publishes to the
// sequence-events topic; *Aggregator consumes them in process when Kafka is
// disabled.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers sequence events off the request path and flushes them
// when the batch is full or the flush interval elapses, whichever comes
// first.
type Collector struct {
	publisher     Publisher
	metrics       *metrics.Metrics
	mu            sync.Mutex
	flushMu       sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher Publisher, batchSize int, flushInterval time.Duration, m *metrics.Metrics) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		metrics:       m,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop, which runs until ctx is
// cancelled and then performs a final flush.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track buffers event keyed by its play so a play's events stay ordered
// within one Kafka partition. A full batch triggers an immediate flush.
func (c *Collector) Track(event SequenceEvent) {
	if event.Type == "" {
		event.Type = EventSequence
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: event.PlayID, Type: string(event.Type), Value: event})
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		go c.Flush(context.Background())
	}
}

// Close waits for the flush loop started by Start to finish.
func (c *Collector) Close() {
	<-c.done
}

func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Flush publishes the buffered events. Failed batches are re-queued ahead of
// newer events, bounded to three batches.
func (c *Collector) Flush(ctx context.Context) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	err := c.publisher.PublishBatch(ctx, batch)
	c.metrics.EventPublished(err)
	if err != nil {
		c.logger.Error("batch flush failed",
			"batch_size", len(batch),
			"error", err,
		)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			dropped := len(c.buffer) - limit
			c.buffer = c.buffer[:limit]
			c.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
		}
		c.mu.Unlock()
		return
	}

	c.logger.Debug("batch flushed", "events", len(batch))
}
