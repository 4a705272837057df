package constraint

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
)

// Anchor keeps a path on-motif: while fewer anchors have been seen than the
// guidance requires, a candidate's text must contain one of the anchor
// targets (case-insensitive substring).
type Anchor struct{}

func (Anchor) Name() string { return "anchor" }

func (Anchor) Evaluate(_, candidate *chunk.Chunk, ctx Context) (bool, Reason) {
	required := ctx.Guidance.RequiredAnchors()
	if required <= 0 {
		return true, ReasonOK
	}
	if len(ctx.Guidance.AnchorTargets) == 0 {
		return false, ReasonMissingAnchorTargets
	}
	if len(ctx.AnchorsSeen) >= required {
		return true, ReasonOK
	}
	text := strings.ToLower(candidate.Text)
	for _, anchor := range ctx.Guidance.AnchorTargets {
		anchor = strings.ToLower(anchor)
		if anchor != "" && strings.Contains(text, anchor) {
			return true, ReasonOK
		}
	}
	return false, ReasonAnchorMissing
}
