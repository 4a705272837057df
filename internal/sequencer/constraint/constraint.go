// Package constraint holds the hard eligibility checks applied while
// enumerating successors. Each check is independent and reports a reason
// code on failure; the enumerator composes them in a fixed order.
package constraint

import (
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
)

// Reason is a stable rejection code surfaced in pruning diagnostics and
// metrics labels.
type Reason string

const (
	ReasonOK                    Reason = "ok"
	ReasonReuse                 Reason = "reuse"
	ReasonEmptyText             Reason = "empty_text"
	ReasonFunctionWordCollision Reason = "function_word_collision"
	ReasonRepeatedEdgeToken     Reason = "repeated_edge_token"
	ReasonAnchorMissing         Reason = "anchor_missing"
	ReasonMissingAnchorTargets  Reason = "missing_anchor_targets"
	ReasonMeterClash            Reason = "meter_clash"
	ReasonWeakMeterFlow         Reason = "weak_meter_flow"
	ReasonRhymeMismatch         Reason = "rhyme_mismatch"
)

// Context is the path-level state a constraint may consult.
type Context struct {
	Guidance    guidance.Profile
	AnchorsSeen []string
	// Path holds the chunks already placed on the beam, oldest first.
	Path []*chunk.Chunk
}

// Position is the zero-based slot the candidate would fill.
func (c Context) Position() int {
	return len(c.Path)
}

// Constraint evaluates one candidate. prev is nil at the start of a path.
type Constraint interface {
	Name() string
	Evaluate(prev, candidate *chunk.Chunk, ctx Context) (bool, Reason)
}

// Defaults returns the constraints wired into every enumeration, in
// evaluation order.
func Defaults() []Constraint {
	return []Constraint{Adjacency{}, Anchor{}}
}
