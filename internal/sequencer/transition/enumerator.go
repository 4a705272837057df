// Package transition enumerates the legal next chunks for a partial path.
// Candidates are visited in input order and checked against the reuse
// tracker, then each constraint in turn, stopping at the first failure.
package transition

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/constraint"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/reuse"
)

// Result is the outcome of one enumeration.
type Result struct {
	// Legal holds the surviving candidate ids in input order.
	Legal []string
	// Pruned maps each rejected candidate id to the first failing reason.
	Pruned map[string]constraint.Reason

	prunedOrder []string
}

// ByReason groups rejected ids by reason, each group in input order.
func (r Result) ByReason() map[constraint.Reason][]string {
	out := make(map[constraint.Reason][]string)
	for _, id := range r.prunedOrder {
		reason := r.Pruned[id]
		out[reason] = append(out[reason], id)
	}
	return out
}

// Enumerator produces successors for one beam. Build a fresh one per beam
// with the tracker seeded from that beam's path.
type Enumerator struct {
	store       *chunk.Store
	tracker     *reuse.Tracker
	constraints []constraint.Constraint
	path        []*chunk.Chunk
	logger      *slog.Logger
}

// New wires the default adjacency and anchor constraints followed by any
// extra constraints supplied by the caller.
func New(store *chunk.Store, tracker *reuse.Tracker, extra ...constraint.Constraint) *Enumerator {
	constraints := append(constraint.Defaults(), extra...)
	return &Enumerator{
		store:       store,
		tracker:     tracker,
		constraints: constraints,
		logger:      slog.Default().With("component", "transition-enumerator"),
	}
}

// WithPath sets the chunks already placed on the beam, used by
// position-aware constraints such as rhyme.
func (e *Enumerator) WithPath(path []*chunk.Chunk) *Enumerator {
	e.path = path
	return e
}

// Enumerate returns the legal successors of prevID ("" for an empty path).
// An unknown prevID is an integration fault and returns ErrChunkNotFound.
func (e *Enumerator) Enumerate(g guidance.Profile, anchorsSeen []string, prevID string) (Result, error) {
	var prev *chunk.Chunk
	if prevID != "" {
		c, err := e.store.Get(prevID)
		if err != nil {
			return Result{}, fmt.Errorf("resolving previous chunk: %w", err)
		}
		prev = c
	}

	ctx := constraint.Context{
		Guidance:    g,
		AnchorsSeen: anchorsSeen,
		Path:        e.path,
	}
	result := Result{
		Legal:  make([]string, 0),
		Pruned: make(map[string]constraint.Reason),
	}
	for _, cand := range e.store.All() {
		if reason, ok := e.check(prev, cand, ctx); !ok {
			result.Pruned[cand.ID] = reason
			result.prunedOrder = append(result.prunedOrder, cand.ID)
			continue
		}
		result.Legal = append(result.Legal, cand.ID)
	}
	e.logger.Debug("candidates enumerated",
		"beat_id", g.BeatID,
		"previous", prevID,
		"legal", len(result.Legal),
		"pruned", len(result.Pruned),
	)
	return result, nil
}

func (e *Enumerator) check(prev, cand *chunk.Chunk, ctx constraint.Context) (constraint.Reason, bool) {
	if e.tracker != nil && e.tracker.IsUsed(cand.ID) {
		return constraint.ReasonReuse, false
	}
	for _, c := range e.constraints {
		if ok, reason := c.Evaluate(prev, cand, ctx); !ok {
			return reason, false
		}
	}
	return constraint.ReasonOK, true
}
