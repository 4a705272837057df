package constraint

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
)

// Rhyme enforces a scheme such as "ABAB" over path positions. The chunk at
// position p must share the rhyme class of the earliest earlier chunk whose
// position carries the same scheme letter.
type Rhyme struct {
	Scheme string
}

func NewRhyme(scheme string) Rhyme {
	return Rhyme{Scheme: strings.ToUpper(strings.TrimSpace(scheme))}
}

func (Rhyme) Name() string { return "rhyme" }

func (r Rhyme) Evaluate(_, candidate *chunk.Chunk, ctx Context) (bool, Reason) {
	pos := ctx.Position()
	if pos >= len(r.Scheme) {
		return true, ReasonOK
	}
	required := r.requiredClass(pos, ctx.Path)
	if required == "" {
		return true, ReasonOK
	}
	got := candidate.Features.RhymeClass
	if got == "" || got == required {
		return true, ReasonOK
	}
	return false, ReasonRhymeMismatch
}

// requiredClass returns "" when pos is the first occurrence of its letter or
// the earlier chunk carries no rhyme class.
func (r Rhyme) requiredClass(pos int, path []*chunk.Chunk) string {
	letter := r.Scheme[pos]
	for i := 0; i < pos && i < len(path); i++ {
		if r.Scheme[i] == letter {
			return path[i].Features.RhymeClass
		}
	}
	return ""
}
