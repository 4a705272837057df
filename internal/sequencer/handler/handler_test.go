package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/cache"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = map[string][]byte{}
	return n, nil
}

type response struct {
	BestPath        []string           `json:"best_path"`
	BestScore       *float64           `json:"best_score"`
	CheckpointsUsed int                `json:"checkpoints_used"`
	Relaxed         bool               `json:"relaxed"`
	CacheHit        bool               `json:"cache_hit"`
	Excluded        int                `json:"excluded"`
	Breakdown       map[string]float64 `json:"breakdown"`
	Pruned          map[string]int     `json:"pruned"`
}

func intPtr(v int) *int { return &v }

func scenarioRequest(playID string) SequenceRequest {
	return SequenceRequest{
		PlayID: playID,
		Guidance: guidance.Profile{
			BeatID:        "act1_scene1_beat1",
			AnchorTargets: []string{"love"},
			Constraints:   map[string]float64{guidance.RequiredAnchorCount: 0},
			Priors:        map[string]float64{guidance.AnchorPresence: 1, guidance.LengthPreference: 0},
		},
		Candidates: []chunk.Chunk{
			{ID: "c1", Text: "Love is bright"},
			{ID: "c2", Text: "The night grows"},
			{ID: "c3", Text: "Stars above us"},
		},
		BeamWidth:          intPtr(2),
		MaxLength:          intPtr(2),
		CheckpointInterval: intPtr(1),
	}
}

type fixture struct {
	handler *Handler
	ledger  *ledger.MemoryLedger
	mux     *http.ServeMux
}

func newFixture(t *testing.T, cfg config.SequencerConfig, rc *cache.ResultCache, collector *analytics.Collector) *fixture {
	t.Helper()
	l := ledger.NewMemoryLedger()
	h := New(cfg, l, rc, collector, metrics.New(prometheus.NewRegistry()))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sequence", h.Sequence)
	mux.HandleFunc("GET /api/v1/plays/{id}/consumed", h.Consumed)
	mux.HandleFunc("DELETE /api/v1/plays/{id}/consumed", h.ResetPlay)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	return &fixture{handler: h, ledger: l, mux: mux}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSequenceAndLedgerAcrossBeats(t *testing.T) {
	f := newFixture(t, config.Default().Sequencer, nil, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/sequence", scenarioRequest("hamlet"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, []string{"c1", "c2"}, resp.BestPath)
	require.NotNil(t, resp.BestScore)
	assert.InDelta(t, 1.0, *resp.BestScore, 1e-9)
	assert.Equal(t, 2, resp.CheckpointsUsed)
	assert.InDelta(t, 1.0, resp.Breakdown["anchor"], 1e-9)

	rec = f.do(t, http.MethodGet, "/api/v1/plays/hamlet/consumed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"play_id":"hamlet","consumed":["c1","c2"]}`, rec.Body.String())

	next := scenarioRequest("hamlet")
	next.Guidance.BeatID = "act1_scene1_beat2"
	rec = f.do(t, http.MethodPost, "/api/v1/sequence", next)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode(t, rec)
	assert.Equal(t, []string{"c3"}, resp.BestPath)
	assert.Equal(t, 2, resp.Excluded)

	rec = f.do(t, http.MethodDelete, "/api/v1/plays/hamlet/consumed", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/v1/plays/hamlet/consumed", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailableFiltersConsumedBeforeEnrich(t *testing.T) {
	f := newFixture(t, config.Default().Sequencer, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.ledger.Record(ctx, "hamlet", "act1_scene1_beat1", []string{"c2"}))

	candidates := scenarioRequest("hamlet").Candidates
	got, excluded, err := f.handler.available(ctx, "hamlet", candidates)
	require.NoError(t, err)
	assert.Equal(t, 1, excluded)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "c3", got[1].ID)
	assert.Equal(t, 3, got[0].TokenCount)
	assert.Empty(t, candidates[0].Tokens, "caller's candidates stay unenriched")

	got, excluded, err = f.handler.available(ctx, "", candidates)
	require.NoError(t, err)
	assert.Zero(t, excluded)
	assert.Len(t, got, 3)
}

func TestSequenceRelaxedRetry(t *testing.T) {
	req := scenarioRequest("")
	req.Guidance.AnchorTargets = []string{"crown"}
	req.Guidance.Constraints[guidance.RequiredAnchorCount] = 1

	cfg := config.Default().Sequencer
	cfg.RelaxOnEmpty = false
	rec := newFixture(t, cfg, nil, nil).do(t, http.MethodPost, "/api/v1/sequence", req)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Nil(t, resp.BestScore)
	assert.Empty(t, resp.BestPath)
	assert.False(t, resp.Relaxed)
	assert.Equal(t, 3, resp.Pruned["anchor_missing"])
	assert.Contains(t, rec.Body.String(), `"best_score":null`)

	cfg.RelaxOnEmpty = true
	rec = newFixture(t, cfg, nil, nil).do(t, http.MethodPost, "/api/v1/sequence", req)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode(t, rec)
	assert.True(t, resp.Relaxed)
	assert.Equal(t, []string{"c1", "c2"}, resp.BestPath)
	require.NotNil(t, resp.BestScore)
}

func TestSequenceRejectsBadInput(t *testing.T) {
	cfg := config.Default().Sequencer
	cfg.MaxCandidates = 2
	f := newFixture(t, cfg, nil, nil)

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sequence", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/sequence", scenarioRequest("")).Code)

	req := scenarioRequest("")
	req.Candidates = req.Candidates[:2]
	req.BeamWidth = intPtr(0)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/sequence", req).Code)

	req = scenarioRequest("")
	req.Candidates = []chunk.Chunk{{ID: "c1", Text: "a"}, {ID: "c1", Text: "b"}}
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/sequence", req).Code)
}

func TestSequenceUsesResultCache(t *testing.T) {
	rc := cache.New(&memStore{data: map[string][]byte{}}, config.RedisConfig{CacheTTL: time.Minute}, nil)
	f := newFixture(t, config.Default().Sequencer, rc, nil)

	first := decode(t, f.do(t, http.MethodPost, "/api/v1/sequence", scenarioRequest("")))
	second := decode(t, f.do(t, http.MethodPost, "/api/v1/sequence", scenarioRequest("")))
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.BestPath, second.BestPath)

	rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	third := decode(t, f.do(t, http.MethodPost, "/api/v1/sequence", scenarioRequest("")))
	assert.False(t, third.CacheHit)
}

func TestCacheInvalidateDisabled(t *testing.T) {
	f := newFixture(t, config.Default().Sequencer, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/v1/cache/invalidate", nil).Code)
}

func TestSequenceTracksEvent(t *testing.T) {
	agg := analytics.NewAggregator(nil)
	collector := analytics.NewCollector(agg, 100, time.Hour, nil)
	f := newFixture(t, config.Default().Sequencer, nil, collector)

	rec := f.do(t, http.MethodPost, "/api/v1/sequence", scenarioRequest("hamlet"))
	require.Equal(t, http.StatusOK, rec.Code)
	collector.Flush(context.Background())

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalSequences)
	assert.Equal(t, int64(1), stats.FoundCount)
	assert.Equal(t, []analytics.PlayCount{{ID: "hamlet", Count: 1}}, stats.TopPlays)
}

func TestSequenceWithRhymeScheme(t *testing.T) {
	cfg := config.Default().Sequencer
	cfg.RhymeScheme = "AA"
	req := scenarioRequest("")
	req.Candidates[0].Features.RhymeClass = "IGHT"
	req.Candidates[1].Features.RhymeClass = "OWS"
	req.Candidates[2].Features.RhymeClass = "IGHT"

	rec := newFixture(t, cfg, nil, nil).do(t, http.MethodPost, "/api/v1/sequence", req)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, []string{"c1", "c3"}, resp.BestPath)
	assert.Positive(t, resp.Pruned["rhyme_mismatch"])
}
