// Package scoring rates candidates against a guidance profile. Scores are
// pure functions of the chunk and the profile.
package scoring

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
)

// DefaultTargetLength is the preferred effective length of a chunk, a
// pentameter line.
const DefaultTargetLength = 10

// Breakdown keys.
const (
	ComponentAnchor  = "anchor"
	ComponentLength  = "length"
	ComponentMeter   = "meter"
	ComponentEmotion = "emotion"
)

// PathID is the identifier of an aggregate produced by ScorePath.
const PathID = "path"

type CandidateScore struct {
	ID         string             `json:"id"`
	Total      float64            `json:"total"`
	Breakdown  map[string]float64 `json:"breakdown"`
	AnchorHits []string           `json:"anchor_hits,omitempty"`
}

type Engine struct {
	targetLength float64
}

// NewEngine returns an engine biased toward targetLength. Non-positive values
// fall back to DefaultTargetLength.
func NewEngine(targetLength float64) *Engine {
	if targetLength <= 0 {
		targetLength = DefaultTargetLength
	}
	return &Engine{targetLength: targetLength}
}

func (e *Engine) TargetLength() float64 {
	return e.targetLength
}

// ScoreCandidate sums the anchor, length, meter and emotion components. The
// meter and emotion components are only present when their weight is
// non-zero.
func (e *Engine) ScoreCandidate(c *chunk.Chunk, g guidance.Profile) CandidateScore {
	breakdown := make(map[string]float64, 4)

	hits := AnchorHits(c, g.AnchorTargets)
	breakdown[ComponentAnchor] = float64(len(hits)) * g.Prior(guidance.AnchorPresence, guidance.DefaultAnchorPresence)

	target := g.Prior(guidance.TargetLength, e.targetLength)
	delta := math.Abs(float64(c.EffectiveLength()) - target)
	breakdown[ComponentLength] = -delta * g.Prior(guidance.LengthPreference, guidance.DefaultLengthPreference)

	if w := g.Prior(guidance.MeterPreference, 0); w != 0 {
		breakdown[ComponentMeter] = c.Iambic() * w
	}
	if w := g.Prior(guidance.EmotionAlignment, 0); w != 0 {
		breakdown[ComponentEmotion] = emotionScore(c, g.Prior(guidance.TargetValence, 0)) * w
	}

	total := 0.0
	for _, k := range []string{ComponentAnchor, ComponentLength, ComponentMeter, ComponentEmotion} {
		total += breakdown[k]
	}
	return CandidateScore{
		ID:         c.ID,
		Total:      total,
		Breakdown:  breakdown,
		AnchorHits: hits,
	}
}

// ScorePath sums totals and merges breakdowns key-wise.
func ScorePath(scores []CandidateScore) CandidateScore {
	out := CandidateScore{
		ID:        PathID,
		Breakdown: make(map[string]float64),
	}
	for _, s := range scores {
		out.Total += s.Total
		for k, v := range s.Breakdown {
			out.Breakdown[k] += v
		}
		out.AnchorHits = append(out.AnchorHits, s.AnchorHits...)
	}
	return out
}

// AnchorHits returns the anchor targets present in the chunk's token set, in
// target order. Matching is on normalized whole tokens.
func AnchorHits(c *chunk.Chunk, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}
	tokens := c.TokenSet()
	var hits []string
	for _, target := range targets {
		norm := chunk.Normalize(target)
		if norm == "" {
			continue
		}
		if _, ok := tokens[norm]; ok {
			hits = append(hits, norm)
		}
	}
	return hits
}

// emotionScore is 1 at the target valence and falls off linearly. A chunk
// without a valence scores 0.
func emotionScore(c *chunk.Chunk, target float64) float64 {
	if c.Features.Valence == nil {
		return 0
	}
	return 1 - math.Abs(target-*c.Features.Valence)
}
