// Package search assembles chunks into a path with a deterministic beam
// search. Each depth extends every live beam by one legal chunk, keeps the
// best beamWidth successors, and periodically snapshots the beam set. When
// no beam can be extended the search rolls back to the latest snapshot,
// penalizing the exhausted paths through avoid memory.
package search

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/constraint"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/reuse"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/scoring"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/transition"
	apperrors "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
)

// NoResult is the best score reported when no path was found.
var NoResult = math.Inf(-1)

// BreakdownAvoidPenalty is the breakdown key carrying avoid-memory penalties
// included in the best score.
const BreakdownAvoidPenalty = "avoid_penalty"

type Params struct {
	BeamWidth          int `json:"beam_width" yaml:"beamWidth"`
	MaxLength          int `json:"max_length" yaml:"maxLength"`
	CheckpointInterval int `json:"checkpoint_interval" yaml:"checkpointInterval"`
}

func (p Params) Validate() error {
	if p.BeamWidth < 1 {
		return fmt.Errorf("beam width %d must be at least 1: %w", p.BeamWidth, apperrors.ErrInvalidInput)
	}
	if p.MaxLength < 0 {
		return fmt.Errorf("max length %d must not be negative: %w", p.MaxLength, apperrors.ErrInvalidInput)
	}
	if p.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint interval %d must not be negative: %w", p.CheckpointInterval, apperrors.ErrInvalidInput)
	}
	return nil
}

// Request describes one search invocation.
type Request struct {
	Guidance guidance.Profile
	Params
	// Constraints are appended after the default adjacency and anchor checks.
	Constraints []constraint.Constraint
	// Avoid carries dead-end prefixes across invocations. A nil value gives
	// the search a private memory.
	Avoid *AvoidMemory
	// InitialAnchors seeds every path's anchors seen, typically with anchors
	// satisfied in earlier beats.
	InitialAnchors []string
}

type Result struct {
	BestPath        []string                  `json:"best_path"`
	BestScore       float64                   `json:"best_score"`
	CheckpointsUsed int                       `json:"checkpoints_used"`
	Rollbacks       int                       `json:"rollbacks"`
	DepthReached    int                       `json:"depth_reached"`
	Terminated      bool                      `json:"terminated"`
	Breakdown       map[string]float64        `json:"breakdown"`
	Pruned          map[constraint.Reason]int `json:"pruned"`
	AvoidedPaths    [][]string                `json:"avoided_paths,omitempty"`
}

// Found reports whether any path was recorded.
func (r *Result) Found() bool {
	return len(r.BestPath) > 0 && !math.IsInf(r.BestScore, -1)
}

// MarshalJSON encodes NoResult as a null best_score.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	out := struct {
		alias
		BestScore *float64 `json:"best_score"`
	}{alias: alias(r)}
	if !math.IsInf(r.BestScore, 0) && !math.IsNaN(r.BestScore) {
		score := r.BestScore
		out.BestScore = &score
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	type alias Result
	aux := struct {
		*alias
		BestScore *float64 `json:"best_score"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.BestScore = NoResult
	if aux.BestScore != nil {
		r.BestScore = *aux.BestScore
	}
	return nil
}

type Option func(*Engine)

func WithScorer(s *scoring.Engine) Option {
	return func(e *Engine) { e.scorer = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAvoidPenalty sets the penalty of the private avoid memory used when a
// request supplies none.
func WithAvoidPenalty(p float64) Option {
	return func(e *Engine) { e.avoidPenalty = p }
}

// Engine runs searches over a fixed candidate store. It holds no per-search
// state and may be shared between goroutines.
type Engine struct {
	store        *chunk.Store
	scorer       *scoring.Engine
	metrics      *metrics.Metrics
	avoidPenalty float64
	logger       *slog.Logger
}

func NewEngine(store *chunk.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		scorer:       scoring.NewEngine(scoring.DefaultTargetLength),
		avoidPenalty: DefaultAvoidPenalty,
		logger:       slog.Default().With("component", "beam-search"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the per-invocation state.
type run struct {
	req         Request
	avoid       *AvoidMemory
	checkpoints *Checkpoints
	scores      map[string]scoring.CandidateScore
	result      *Result
}

// Run executes one search. Exhaustion is not an error: the result then has
// an empty path and NoResult as its score. Context cancellation is checked
// once per depth; the partial result is returned with the wrapped error.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	r := &run{
		req:         req,
		avoid:       req.Avoid,
		checkpoints: NewCheckpoints(),
		scores:      make(map[string]scoring.CandidateScore),
		result: &Result{
			BestPath:  []string{},
			BestScore: NoResult,
			Pruned:    make(map[constraint.Reason]int),
		},
	}
	if r.avoid == nil {
		r.avoid = NewAvoidMemory(e.avoidPenalty)
	}

	beams := []Beam{{
		Path:        []string{},
		AnchorsSeen: slices.Clone(req.InitialAnchors),
	}}

	for depth := 1; depth <= req.MaxLength; {
		if err := ctx.Err(); err != nil {
			e.finish(r)
			return r.result, fmt.Errorf("search cancelled at depth %d: %w", depth, err)
		}

		successors, failed, err := e.expand(r, beams)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("depth expanded",
			"beat_id", req.Guidance.BeatID,
			"depth", depth,
			"beams", len(beams),
			"successors", len(successors),
		)

		if len(successors) == 0 {
			restored, from, ok := Rollback(r.checkpoints, r.avoid, failed)
			if !ok {
				e.logger.Warn("beam search terminated early",
					"beat_id", req.Guidance.BeatID,
					"depth", depth,
				)
				r.result.Terminated = true
				break
			}
			r.result.Rollbacks++
			e.metrics.IncRollback()
			e.logger.Warn("rolled back",
				"beat_id", req.Guidance.BeatID,
				"depth", depth,
				"checkpoint_depth", from,
			)
			beams = restored
			continue
		}

		slices.SortStableFunc(successors, func(a, b Beam) int {
			return cmp.Compare(b.Score, a.Score)
		})
		beams = successors[:min(req.BeamWidth, len(successors))]
		r.consider(beams[0])
		r.result.DepthReached = depth

		if req.CheckpointInterval > 0 && depth%req.CheckpointInterval == 0 {
			r.checkpoints.Save(depth, beams)
			e.metrics.IncCheckpoint()
		}
		depth++
	}

	e.finish(r)
	e.logger.Info("beam search completed",
		"beat_id", req.Guidance.BeatID,
		"best_score", r.result.BestScore,
		"path_length", len(r.result.BestPath),
		"depth_reached", r.result.DepthReached,
		"rollbacks", r.result.Rollbacks,
	)
	return r.result, nil
}

// expand enumerates and scores successors for every beam. Beams with no
// legal successor are reported in failed.
func (e *Engine) expand(r *run, beams []Beam) (successors []Beam, failed [][]string, err error) {
	for _, beam := range beams {
		path, err := e.store.Resolve(beam.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving beam path: %w", err)
		}
		enum := transition.New(e.store, reuse.FromPath(beam.Path), r.req.Constraints...).WithPath(path)
		res, err := enum.Enumerate(r.req.Guidance, beam.AnchorsSeen, beam.Last())
		if err != nil {
			return nil, nil, err
		}
		for _, reason := range res.Pruned {
			r.result.Pruned[reason]++
		}
		if len(res.Legal) == 0 {
			failed = append(failed, slices.Clone(beam.Path))
			continue
		}
		for _, id := range res.Legal {
			sc, err := e.score(r, id)
			if err != nil {
				return nil, nil, err
			}
			next := beam.Extend(id, 0, sc.AnchorHits)
			next.Score = beam.Score + sc.Total - r.avoid.PenaltyFor(next.Path)
			successors = append(successors, next)
		}
	}
	return successors, failed, nil
}

func (e *Engine) score(r *run, id string) (scoring.CandidateScore, error) {
	if sc, ok := r.scores[id]; ok {
		return sc, nil
	}
	c, err := e.store.Get(id)
	if err != nil {
		return scoring.CandidateScore{}, err
	}
	sc := e.scorer.ScoreCandidate(c, r.req.Guidance)
	r.scores[id] = sc
	return sc, nil
}

// consider applies the best-path rule: a strictly higher score wins, and an
// equal score wins only with a longer path.
func (r *run) consider(top Beam) {
	better := top.Score > r.result.BestScore
	longerTie := top.Score == r.result.BestScore && len(top.Path) > len(r.result.BestPath)
	if better || longerTie {
		r.result.BestScore = top.Score
		r.result.BestPath = slices.Clone(top.Path)
	}
}

func (e *Engine) finish(r *run) {
	res := r.result
	res.CheckpointsUsed = r.checkpoints.Count()
	res.AvoidedPaths = r.avoid.AvoidedPaths()

	scores := make([]scoring.CandidateScore, 0, len(res.BestPath))
	for _, id := range res.BestPath {
		if sc, err := e.score(r, id); err == nil {
			scores = append(scores, sc)
		}
	}
	agg := scoring.ScorePath(scores)
	res.Breakdown = agg.Breakdown
	if res.Found() {
		if d := res.BestScore - agg.Total; math.Abs(d) > 1e-9 {
			res.Breakdown[BreakdownAvoidPenalty] = d
		}
	}

	for reason, n := range res.Pruned {
		e.metrics.AddPruned(string(reason), n)
	}
}
