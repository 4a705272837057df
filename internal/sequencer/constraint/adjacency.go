package constraint

import "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"

// Adjacency rejects weak seams between consecutive chunks: two function
// words meeting at the boundary, or the same word repeated across it.
type Adjacency struct{}

func (Adjacency) Name() string { return "adjacency" }

func (Adjacency) Evaluate(prev, candidate *chunk.Chunk, _ Context) (bool, Reason) {
	if candidate.Text == "" {
		return false, ReasonEmptyText
	}
	if prev == nil {
		return true, ReasonOK
	}
	if prev.Features.EndsWithFunctionWord && candidate.Features.StartsWithFunctionWord {
		return false, ReasonFunctionWordCollision
	}
	last, first := prev.LastToken(), candidate.FirstToken()
	if last != "" && last == first {
		return false, ReasonRepeatedEdgeToken
	}
	return true, ReasonOK
}
