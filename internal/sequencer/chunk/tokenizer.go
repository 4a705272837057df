package chunk

import (
	"strings"
	"unicode"
)

// functionWords is the closed-class list used for boundary flags. A seam
// where both sides are function words reads as a broken phrase.
var functionWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "for": {}, "from": {}, "in": {},
	"is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "that": {},
	"the": {}, "to": {}, "with": {},
}

// Tokenize splits text into word tokens, keeping letters, digits and
// apostrophes. Case is preserved.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Normalize lower-cases a token and trims surrounding punctuation.
func Normalize(token string) string {
	token = strings.ToLower(token)
	return strings.TrimFunc(token, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// IsFunctionWord reports whether token is a closed-class word.
func IsFunctionWord(token string) bool {
	_, ok := functionWords[Normalize(token)]
	return ok
}

// New builds an enriched chunk from raw text.
func New(id, text string) Chunk {
	return Enrich(Chunk{ID: id, Text: text})
}

// Enrich fills in the boundary features derivable from the text alone:
// tokens (when absent), the token count (when zero) and the function-word
// flags of the first and last token. Other features are left untouched.
func Enrich(c Chunk) Chunk {
	if len(c.Tokens) == 0 {
		c.Tokens = Tokenize(c.Text)
	}
	if c.TokenCount == 0 {
		c.TokenCount = len(c.Tokens)
	}
	if len(c.Tokens) > 0 {
		c.Features.StartsWithFunctionWord = IsFunctionWord(c.Tokens[0])
		c.Features.EndsWithFunctionWord = IsFunctionWord(c.Tokens[len(c.Tokens)-1])
	}
	return c
}
