package chunk

import "strings"

// NormalizeStress maps a dictionary stress pattern (0 unstressed, 1 primary,
// 2 secondary) to binary 0/1, dropping any other character.
func NormalizeStress(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	for _, r := range pattern {
		switch r {
		case '0':
			b.WriteByte('0')
		case '1', '2':
			b.WriteByte('1')
		}
	}
	return b.String()
}

// IambicScore is the fraction of syllables matching the alternating
// unstressed/stressed ideal "0101...". Empty patterns score 0.
func IambicScore(pattern string) float64 {
	norm := NormalizeStress(pattern)
	if norm == "" {
		return 0
	}
	matches := 0
	for i := 0; i < len(norm); i++ {
		expected := byte('0')
		if i%2 == 1 {
			expected = '1'
		}
		if norm[i] == expected {
			matches++
		}
	}
	return float64(matches) / float64(len(norm))
}

// Iambic returns the chunk's precomputed iambic score, falling back to the
// stress pattern.
func (c *Chunk) Iambic() float64 {
	if c.Features.IambicScore != nil {
		return *c.Features.IambicScore
	}
	return IambicScore(c.Features.StressPattern)
}
