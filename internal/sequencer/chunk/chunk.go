// Package chunk defines the immutable text units the sequencer assembles,
// the typed feature bag attached to them by the enrichment pipeline, and a
// read-only Store that resolves chunk identifiers for the duration of one
// search.
package chunk

// Features is the optional feature bag produced upstream. Zero values mean
// "not computed": SyllableCount 0, empty StressPattern and RhymeClass, and
// nil Valence / IambicScore.
type Features struct {
	SyllableCount          int                `json:"syllable_count,omitempty" yaml:"syllableCount,omitempty"`
	StressPattern          string             `json:"stress_pattern,omitempty" yaml:"stressPattern,omitempty"`
	RhymeClass             string             `json:"rhyme_class,omitempty" yaml:"rhymeClass,omitempty"`
	Valence                *float64           `json:"valence,omitempty" yaml:"valence,omitempty"`
	IambicScore            *float64           `json:"iambic_score,omitempty" yaml:"iambicScore,omitempty"`
	StartsWithFunctionWord bool               `json:"starts_with_function_word,omitempty" yaml:"startsWithFunctionWord,omitempty"`
	EndsWithFunctionWord   bool               `json:"ends_with_function_word,omitempty" yaml:"endsWithFunctionWord,omitempty"`
	Extra                  map[string]float64 `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Chunk is a candidate text unit. The sequencer only reads chunks.
type Chunk struct {
	ID         string   `json:"id" yaml:"id"`
	Text       string   `json:"text" yaml:"text"`
	Tokens     []string `json:"tokens" yaml:"tokens"`
	TokenCount int      `json:"token_count" yaml:"tokenCount"`
	Features   Features `json:"features" yaml:"features"`
}

// FirstToken returns the normalized first token, or "" for an empty chunk.
func (c *Chunk) FirstToken() string {
	if len(c.Tokens) == 0 {
		return ""
	}
	return Normalize(c.Tokens[0])
}

// LastToken returns the normalized last token, or "" for an empty chunk.
func (c *Chunk) LastToken() string {
	if len(c.Tokens) == 0 {
		return ""
	}
	return Normalize(c.Tokens[len(c.Tokens)-1])
}

// EffectiveLength is the syllable count when known, else the token count.
func (c *Chunk) EffectiveLength() int {
	if c.Features.SyllableCount > 0 {
		return c.Features.SyllableCount
	}
	if c.TokenCount > 0 {
		return c.TokenCount
	}
	return len(c.Tokens)
}

// TokenSet returns the set of normalized tokens.
func (c *Chunk) TokenSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Tokens))
	for _, tok := range c.Tokens {
		if norm := Normalize(tok); norm != "" {
			set[norm] = struct{}{}
		}
	}
	return set
}
