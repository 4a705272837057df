package constraint

import "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"

// Seam scores for the stress pair (last syllable of prev, first of next).
const (
	seamStressedUnstressed = 1.0
	seamUnstressedStressed = 0.9
	seamSameStress         = 0.3
	clashThreshold         = 0.4
)

// Meter accepts a seam whose score is at least Strictness. Strictness 0
// accepts everything; 1 only accepts a stressed-to-unstressed seam.
// Higher strictness is stricter here, the inverse of a "score >= 1 -
// strictness" threshold; keep it that way so 0 stays the lenient setting.
type Meter struct {
	Strictness float64
}

func NewMeter(strictness float64) Meter {
	return Meter{Strictness: min(1, max(0, strictness))}
}

func (Meter) Name() string { return "meter" }

func (m Meter) Evaluate(prev, candidate *chunk.Chunk, _ Context) (bool, Reason) {
	if prev == nil {
		return true, ReasonOK
	}
	score, ok := SeamScore(prev.Features.StressPattern, candidate.Features.StressPattern)
	if !ok || score >= m.Strictness {
		return true, ReasonOK
	}
	if score < clashThreshold {
		return false, ReasonMeterClash
	}
	return false, ReasonWeakMeterFlow
}

// SeamScore rates how well two stress patterns join. ok is false when
// either side has no usable pattern.
func SeamScore(prevPattern, nextPattern string) (score float64, ok bool) {
	prev := chunk.NormalizeStress(prevPattern)
	next := chunk.NormalizeStress(nextPattern)
	if prev == "" || next == "" {
		return 0, false
	}
	end, start := prev[len(prev)-1], next[0]
	switch {
	case end == '1' && start == '0':
		return seamStressedUnstressed, true
	case end == '0' && start == '1':
		return seamUnstressedStressed, true
	default:
		return seamSameStress, true
	}
}
