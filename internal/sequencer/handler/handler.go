// Package handler exposes the sequencer over HTTP: one endpoint runs a beam
// search for a beat, and the play endpoints inspect or reset the
// consumed-chunk ledger.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/cache"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/constraint"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/scoring"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/search"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/tracing"
)

const maxBodyBytes = 32 << 20

// SequenceRequest is the body of POST /api/v1/sequence. Omitted search
// parameters fall back to the service defaults.
type SequenceRequest struct {
	PlayID             string           `json:"play_id"`
	Guidance           guidance.Profile `json:"guidance"`
	Candidates         []chunk.Chunk    `json:"candidates"`
	InitialAnchors     []string         `json:"initial_anchors,omitempty"`
	BeamWidth          *int             `json:"beam_width,omitempty"`
	MaxLength          *int             `json:"max_length,omitempty"`
	CheckpointInterval *int             `json:"checkpoint_interval,omitempty"`
}

// SequenceResponse reports the search outcome. BestScore is null when no
// path was found.
type SequenceResponse struct {
	BestPath        []string                  `json:"best_path"`
	BestScore       *float64                  `json:"best_score"`
	CheckpointsUsed int                       `json:"checkpoints_used"`
	Rollbacks       int                       `json:"rollbacks"`
	DepthReached    int                       `json:"depth_reached"`
	Terminated      bool                      `json:"terminated"`
	Relaxed         bool                      `json:"relaxed"`
	CacheHit        bool                      `json:"cache_hit"`
	Excluded        int                       `json:"excluded"`
	Breakdown       map[string]float64        `json:"breakdown"`
	Pruned          map[constraint.Reason]int `json:"pruned"`
	AvoidedPaths    [][]string                `json:"avoided_paths,omitempty"`
}

type Handler struct {
	cfg       config.SequencerConfig
	ledger    ledger.Ledger
	cache     *cache.ResultCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	scorer    *scoring.Engine
	extra     []constraint.Constraint
	variant   string
	logger    *slog.Logger
}

// New builds the handler. ledger must not be nil; resultCache, collector and
// m may be.
func New(cfg config.SequencerConfig, l ledger.Ledger, resultCache *cache.ResultCache, collector *analytics.Collector, m *metrics.Metrics) *Handler {
	var extra []constraint.Constraint
	if cfg.MeterStrictness > 0 {
		extra = append(extra, constraint.NewMeter(cfg.MeterStrictness))
	}
	if cfg.RhymeScheme != "" {
		extra = append(extra, constraint.NewRhyme(cfg.RhymeScheme))
	}
	return &Handler{
		cfg:       cfg,
		ledger:    l,
		cache:     resultCache,
		collector: collector,
		metrics:   m,
		scorer:    scoring.NewEngine(cfg.TargetLength),
		extra:     extra,
		variant: fmt.Sprintf("meter=%g;rhyme=%s;avoid=%g;target=%g;relax=%t",
			cfg.MeterStrictness, cfg.RhymeScheme, cfg.AvoidPenalty, cfg.TargetLength, cfg.RelaxOnEmpty),
		logger: slog.Default().With("component", "sequence-handler"),
	}
}

// Sequence handles POST /api/v1/sequence.
func (h *Handler) Sequence(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "sequence", middleware.GetRequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End(nil)
		span.Log(log)
	}()

	var req SequenceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Candidates) > h.cfg.MaxCandidates && h.cfg.MaxCandidates > 0 {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("too many candidates: %d exceeds %d", len(req.Candidates), h.cfg.MaxCandidates))
		return
	}
	params := h.params(req)
	if err := params.Validate(); err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	candidates, excluded, err := h.available(ctx, req.PlayID, req.Candidates)
	if err != nil {
		log.Error("reading ledger failed", "play_id", req.PlayID, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "consumed-chunk ledger unavailable")
		return
	}
	store, err := chunk.NewStore(candidates)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	compute := func() (*cache.Entry, error) {
		return h.search(ctx, store, req, params)
	}
	var entry *cache.Entry
	cacheHit := false
	if h.cache != nil {
		entry, cacheHit, err = h.cache.GetOrCompute(ctx, cache.Key{
			Candidates:     candidates,
			Guidance:       req.Guidance,
			Params:         params,
			InitialAnchors: req.InitialAnchors,
			Variant:        h.variant,
		}, compute)
	} else {
		entry, err = compute()
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeCancelled
		}
		h.metrics.ObserveRun(outcome, cacheStatus, time.Since(start), 0)
		log.Error("sequencing failed", "beat_id", req.Guidance.BeatID, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	result := entry.Result

	if result.Found() && req.PlayID != "" {
		_, recordSpan := tracing.Start(ctx, "ledger.record", "")
		err := h.ledger.Record(ctx, req.PlayID, req.Guidance.BeatID, result.BestPath)
		recordSpan.End(err)
		if err != nil {
			log.Error("recording consumed chunks failed", "play_id", req.PlayID, "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "consumed-chunk ledger unavailable")
			return
		}
	}

	elapsed := time.Since(start)
	h.metrics.ObserveRun(outcomeOf(result), cacheStatus, elapsed, result.DepthReached)
	resp := toResponse(result, entry.Relaxed, cacheHit, excluded)

	log.Info("sequence completed",
		"play_id", req.PlayID,
		"beat_id", req.Guidance.BeatID,
		"candidates", len(candidates),
		"path_length", len(result.BestPath),
		"relaxed", entry.Relaxed,
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	if h.collector != nil {
		h.collector.Track(analytics.SequenceEvent{
			Type:            analytics.EventSequence,
			PlayID:          req.PlayID,
			BeatID:          req.Guidance.BeatID,
			RequestID:       middleware.GetRequestID(ctx),
			CandidateCount:  len(candidates),
			PathLength:      len(result.BestPath),
			BestScore:       resp.BestScore,
			Relaxed:         entry.Relaxed,
			CacheHit:        cacheHit,
			Rollbacks:       result.Rollbacks,
			CheckpointsUsed: result.CheckpointsUsed,
			DepthReached:    result.DepthReached,
			Terminated:      result.Terminated,
			Pruned:          prunedByName(result.Pruned),
			LatencyMs:       elapsed.Milliseconds(),
			Timestamp:       time.Now().UTC(),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// search runs the beam search under the configured timeout. An empty result
// is retried once with the anchor requirement dropped when relaxOnEmpty is
// set and the profile required anchors.
func (h *Handler) search(ctx context.Context, store *chunk.Store, req SequenceRequest, params search.Params) (entry *cache.Entry, err error) {
	ctx, span := tracing.Start(ctx, "search", "")
	defer func() {
		if entry != nil {
			span.SetAttr("relaxed", entry.Relaxed)
			span.SetAttr("depth_reached", entry.Result.DepthReached)
		}
		span.End(err)
	}()
	engine := search.NewEngine(store,
		search.WithScorer(h.scorer),
		search.WithMetrics(h.metrics),
		search.WithAvoidPenalty(h.cfg.AvoidPenalty),
	)
	run := func(g guidance.Profile) (*search.Result, error) {
		var res *search.Result
		err := resilience.WithTimeout(ctx, h.cfg.Timeout, "sequence", func(ctx context.Context) error {
			out, err := engine.Run(ctx, search.Request{
				Guidance:       g,
				Params:         params,
				Constraints:    h.extra,
				InitialAnchors: req.InitialAnchors,
			})
			res = out
			return err
		})
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperrors.ErrTimeout) {
			err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	result, err := run(req.Guidance)
	if err != nil {
		return nil, err
	}
	if result.Found() || !h.cfg.RelaxOnEmpty || req.Guidance.RequiredAnchors() == 0 {
		return &cache.Entry{Result: result}, nil
	}

	h.metrics.IncRelaxedRetry()
	logger.FromContext(ctx).Warn("no path found, retrying without anchor requirement",
		"beat_id", req.Guidance.BeatID,
		"required_anchor_count", req.Guidance.RequiredAnchors(),
	)
	relaxed, err := run(req.Guidance.Relaxed())
	if err != nil {
		return nil, err
	}
	return &cache.Entry{Result: relaxed, Relaxed: true}, nil
}

// available drops candidates the play has already consumed and enriches the
// rest with boundary features.
func (h *Handler) available(ctx context.Context, playID string, candidates []chunk.Chunk) ([]chunk.Chunk, int, error) {
	var consumed []string
	if playID != "" {
		_, span := tracing.Start(ctx, "ledger.consumed", "")
		ids, err := h.ledger.ConsumedIDs(ctx, playID)
		span.SetAttr("consumed", len(ids))
		span.End(err)
		if err != nil {
			return nil, 0, err
		}
		consumed = ids
	}
	kept := ledger.Exclude(candidates, func(c chunk.Chunk) string { return c.ID }, consumed)
	out := make([]chunk.Chunk, len(kept))
	for i, c := range kept {
		out[i] = chunk.Enrich(c)
	}
	return out, len(candidates) - len(kept), nil
}

func (h *Handler) params(req SequenceRequest) search.Params {
	p := search.Params{
		BeamWidth:          h.cfg.BeamWidth,
		MaxLength:          h.cfg.MaxLength,
		CheckpointInterval: h.cfg.CheckpointInterval,
	}
	if req.BeamWidth != nil {
		p.BeamWidth = *req.BeamWidth
	}
	if req.MaxLength != nil {
		p.MaxLength = *req.MaxLength
	}
	if req.CheckpointInterval != nil {
		p.CheckpointInterval = *req.CheckpointInterval
	}
	return p
}

// Consumed handles GET /api/v1/plays/{id}/consumed.
func (h *Handler) Consumed(w http.ResponseWriter, r *http.Request) {
	playID := r.PathValue("id")
	ids, err := h.ledger.ConsumedIDs(r.Context(), playID)
	if err != nil {
		logger.FromContext(r.Context()).Error("reading ledger failed", "play_id", playID, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "consumed-chunk ledger unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"play_id":  playID,
		"consumed": ids,
	})
}

// ResetPlay handles DELETE /api/v1/plays/{id}/consumed.
func (h *Handler) ResetPlay(w http.ResponseWriter, r *http.Request) {
	playID := r.PathValue("id")
	if err := h.ledger.Reset(r.Context(), playID); err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("resetting play failed", "play_id", playID, "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func outcomeOf(r *search.Result) string {
	switch {
	case r.Found():
		return metrics.OutcomeFound
	case r.Terminated:
		return metrics.OutcomeTerminated
	default:
		return metrics.OutcomeNoResult
	}
}

func toResponse(r *search.Result, relaxed, cacheHit bool, excluded int) SequenceResponse {
	resp := SequenceResponse{
		BestPath:        r.BestPath,
		CheckpointsUsed: r.CheckpointsUsed,
		Rollbacks:       r.Rollbacks,
		DepthReached:    r.DepthReached,
		Terminated:      r.Terminated,
		Relaxed:         relaxed,
		CacheHit:        cacheHit,
		Excluded:        excluded,
		Breakdown:       r.Breakdown,
		Pruned:          r.Pruned,
		AvoidedPaths:    r.AvoidedPaths,
	}
	if resp.BestPath == nil {
		resp.BestPath = []string{}
	}
	if r.Found() {
		score := r.BestScore
		resp.BestScore = &score
	}
	return resp
}

func prunedByName(pruned map[constraint.Reason]int) map[string]int {
	out := make(map[string]int, len(pruned))
	for reason, n := range pruned {
		out[string(reason)] = n
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
