package analytics

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/kafka"
)

type AggregatedStats struct {
	TotalSequences     int64            `json:"total_sequences"`
	FoundCount         int64            `json:"found_count"`
	NoResultCount      int64            `json:"no_result_count"`
	RelaxedCount       int64            `json:"relaxed_count"`
	TerminatedCount    int64            `json:"terminated_count"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	TotalRollbacks     int64            `json:"total_rollbacks"`
	AvgPathLength      float64          `json:"avg_path_length"`
	AvgLatencyMs       float64          `json:"avg_latency_ms"`
	P50LatencyMs       int64            `json:"p50_latency_ms"`
	P95LatencyMs       int64            `json:"p95_latency_ms"`
	P99LatencyMs       int64            `json:"p99_latency_ms"`
	PrunedByReason     map[string]int64 `json:"pruned_by_reason"`
	TopPlays           []PlayCount      `json:"top_plays"`
	NoResultBeats      []PlayCount      `json:"no_result_beats"`
	SequencesPerMinute float64          `json:"sequences_per_minute"`
	CapturedAt         time.Time        `json:"captured_at"`
}

// PlayCount pairs a play or beat identifier with an event count.
type PlayCount struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

const maxLatencySamples = 10000

// Aggregator folds sequence events into running statistics. It reads them
// from Kafka through a consumer or, in local mode, receives them directly as
// the collector's Publisher.
type Aggregator struct {
	mu              sync.RWMutex
	totalSequences  atomic.Int64
	found           atomic.Int64
	noResult        atomic.Int64
	relaxed         atomic.Int64
	terminated      atomic.Int64
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	rollbacks       atomic.Int64
	pathLengthTotal atomic.Int64
	latencies       []int64
	pruned          map[string]int64
	playCounts      map[string]int64
	noResultBeats   map[string]int64
	startTime       time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an aggregator. consumer may be nil in local mode.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:     make([]int64, 0, 1024),
		pruned:        make(map[string]int64),
		playCounts:    make(map[string]int64),
		noResultBeats: make(map[string]int64),
		startTime:     time.Now(),
		consumer:      consumer,
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
}

// SetConsumer attaches the Kafka consumer whose handler is HandleEvent(a).
func (a *Aggregator) SetConsumer(consumer *kafka.Consumer) {
	a.consumer = consumer
}

// Start consumes events until ctx is cancelled. In local mode it returns at
// once.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		return nil
	}
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent adapts the aggregator to a Kafka message handler. Messages
// tagged with another event type are ignored; undecodable ones are returned
// as kafka.ErrMalformed so the consumer skips them.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.Type != "" && msg.Type != string(EventSequence) {
			agg.logger.Debug("ignoring event", "type", msg.Type, "key", string(msg.Key))
			return nil
		}
		event, err := kafka.DecodeJSON[SequenceEvent](msg.Value)
		if err != nil {
			return err
		}
		agg.Record(event)
		return nil
	}
}

// PublishBatch records events in process. It lets the collector publish
// straight to the aggregator when Kafka is disabled.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, ev := range events {
		switch v := ev.Value.(type) {
		case SequenceEvent:
			a.Record(v)
		case *SequenceEvent:
			a.Record(*v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encoding event %q: %w", ev.Key, err)
			}
			event, err := kafka.DecodeJSON[SequenceEvent](data)
			if err != nil {
				return err
			}
			a.Record(event)
		}
	}
	return nil
}

func (a *Aggregator) Record(event SequenceEvent) {
	a.totalSequences.Add(1)
	if event.Found() {
		a.found.Add(1)
		a.pathLengthTotal.Add(int64(event.PathLength))
	} else {
		a.noResult.Add(1)
	}
	if event.Relaxed {
		a.relaxed.Add(1)
	}
	if event.Terminated {
		a.terminated.Add(1)
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	a.rollbacks.Add(int64(event.Rollbacks))

	a.mu.Lock()
	if len(a.latencies) >= maxLatencySamples {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	for reason, n := range event.Pruned {
		a.pruned[reason] += int64(n)
	}
	a.playCounts[event.PlayID]++
	if !event.Found() {
		a.noResultBeats[event.BeatID]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSequences:  a.totalSequences.Load(),
		FoundCount:      a.found.Load(),
		NoResultCount:   a.noResult.Load(),
		RelaxedCount:    a.relaxed.Load(),
		TerminatedCount: a.terminated.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		TotalRollbacks:  a.rollbacks.Load(),
		PrunedByReason:  make(map[string]int64, len(a.pruned)),
		CapturedAt:      time.Now().UTC(),
	}
	for reason, n := range a.pruned {
		stats.PrunedByReason[reason] = n
	}
	if stats.FoundCount > 0 {
		stats.AvgPathLength = float64(a.pathLengthTotal.Load()) / float64(stats.FoundCount)
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopPlays = topN(a.playCounts, 10)
	stats.NoResultBeats = topN(a.noResultBeats, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.SequencesPerMinute = float64(stats.TotalSequences) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then id ascending.
func topN(counts map[string]int64, n int) []PlayCount {
	result := make([]PlayCount, 0, len(counts))
	for id, count := range counts {
		result = append(result, PlayCount{ID: id, Count: count})
	}
	slices.SortFunc(result, func(a, b PlayCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
