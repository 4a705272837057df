package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func score(v float64) *float64 { return &v }

func TestCollectorFlushKeysByPlay(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 10, time.Hour, nil)

	c.Track(SequenceEvent{PlayID: "hamlet", BeatID: "b1", PathLength: 2, BestScore: score(1)})
	c.Track(SequenceEvent{PlayID: "macbeth", BeatID: "b1"})
	assert.Equal(t, 2, c.BufferLen())

	c.Flush(context.Background())
	assert.Equal(t, 0, c.BufferLen())
	require.Len(t, pub.batches, 1)
	batch := pub.batches[0]
	assert.Equal(t, "hamlet", batch[0].Key)
	assert.Equal(t, "macbeth", batch[1].Key)

	ev := batch[0].Value.(SequenceEvent)
	assert.Equal(t, EventSequence, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestCollectorRequeuesFailedBatch(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 2, time.Hour, nil)
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: "p", Value: SequenceEvent{PlayID: "p"}})
	c.mu.Unlock()

	c.Flush(context.Background())
	assert.Equal(t, 1, c.BufferLen())

	pub.err = nil
	c.Flush(context.Background())
	assert.Equal(t, 0, c.BufferLen())
	assert.Len(t, pub.batches, 1)
}

func TestCollectorFinalFlushOnShutdown(t *testing.T) {
	agg := NewAggregator(nil)
	c := NewCollector(agg, 100, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(SequenceEvent{PlayID: "hamlet", BeatID: "b1", PathLength: 3, BestScore: score(2)})
	cancel()
	c.Close()

	assert.Equal(t, int64(1), agg.Stats().TotalSequences)
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(SequenceEvent{PlayID: "hamlet", BeatID: "b1", PathLength: 2, BestScore: score(1.5), LatencyMs: 10, Rollbacks: 1, Pruned: map[string]int{"reuse": 2}})
	agg.Record(SequenceEvent{PlayID: "hamlet", BeatID: "b2", PathLength: 4, BestScore: score(3), LatencyMs: 30, CacheHit: true, Relaxed: true})
	agg.Record(SequenceEvent{PlayID: "macbeth", BeatID: "b9", LatencyMs: 20, Terminated: true, Pruned: map[string]int{"reuse": 1, "anchor_missing": 4}})

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalSequences)
	assert.Equal(t, int64(2), stats.FoundCount)
	assert.Equal(t, int64(1), stats.NoResultCount)
	assert.Equal(t, int64(1), stats.RelaxedCount)
	assert.Equal(t, int64(1), stats.TerminatedCount)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.TotalRollbacks)
	assert.Equal(t, 3.0, stats.AvgPathLength)
	assert.Equal(t, 20.0, stats.AvgLatencyMs)
	assert.Equal(t, int64(20), stats.P50LatencyMs)
	assert.Equal(t, map[string]int64{"reuse": 3, "anchor_missing": 4}, stats.PrunedByReason)
	assert.Equal(t, []PlayCount{{ID: "hamlet", Count: 2}, {ID: "macbeth", Count: 1}}, stats.TopPlays)
	assert.Equal(t, []PlayCount{{ID: "b9", Count: 1}}, stats.NoResultBeats)
}

func TestHandleEventFiltersAndDecodes(t *testing.T) {
	agg := NewAggregator(nil)
	handle := HandleEvent(agg)

	data, err := json.Marshal(SequenceEvent{Type: EventSequence, PlayID: "hamlet", BeatID: "b1", PathLength: 1, BestScore: score(1)})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), kafka.Message{Key: []byte("hamlet"), Type: "sequence", Value: data}))
	require.NoError(t, handle(context.Background(), kafka.Message{Key: []byte("hamlet"), Value: data}))
	require.NoError(t, handle(context.Background(), kafka.Message{Type: "heartbeat", Value: data}))
	assert.ErrorIs(t, handle(context.Background(), kafka.Message{Value: []byte("{not json")}), kafka.ErrMalformed)

	stats := agg.Stats()
	assert.Equal(t, int64(2), stats.TotalSequences)
	assert.Equal(t, int64(2), stats.FoundCount)
}

func TestPublishBatchAcceptsForeignValues(t *testing.T) {
	agg := NewAggregator(nil)
	err := agg.PublishBatch(context.Background(), []kafka.Event{
		{Key: "a", Value: &SequenceEvent{PlayID: "a"}},
		{Key: "b", Value: map[string]any{"play_id": "b", "path_length": 1, "best_score": 0.5}},
	})
	require.NoError(t, err)
	stats := agg.Stats()
	assert.Equal(t, int64(2), stats.TotalSequences)
	assert.Equal(t, int64(1), stats.FoundCount)
}

type fakeSnapshots struct {
	snapshots []AggregatedStats
	limit     int
}

func (f *fakeSnapshots) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snapshots, nil
}

func TestHandlerStatsAndHistory(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Record(SequenceEvent{PlayID: "hamlet", BeatID: "b1"})

	rec := httptest.NewRecorder()
	NewHandler(agg, nil).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalSequences)

	rec = httptest.NewRecorder()
	NewHandler(agg, nil).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	store := &fakeSnapshots{snapshots: []AggregatedStats{{TotalSequences: 7}}}
	h := NewHandler(agg, store)

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=9999", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, store.limit)
	assert.Contains(t, rec.Body.String(), `"total_sequences":7`)

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
