package search

import "slices"

// Beam is one path under construction. Beams are replaced, never mutated:
// Extend and Clone always allocate fresh slices.
type Beam struct {
	Path        []string `json:"path"`
	Score       float64  `json:"score"`
	AnchorsSeen []string `json:"anchors_seen"`
}

func (b Beam) Clone() Beam {
	return Beam{
		Path:        slices.Clone(b.Path),
		Score:       b.Score,
		AnchorsSeen: slices.Clone(b.AnchorsSeen),
	}
}

// Last returns the final chunk id on the path, or "" for an empty path.
func (b Beam) Last() string {
	if len(b.Path) == 0 {
		return ""
	}
	return b.Path[len(b.Path)-1]
}

// Extend returns a successor with id appended, score replaced and hits added
// to the anchors seen.
func (b Beam) Extend(id string, score float64, hits []string) Beam {
	path := make([]string, len(b.Path), len(b.Path)+1)
	copy(path, b.Path)
	anchors := make([]string, len(b.AnchorsSeen), len(b.AnchorsSeen)+len(hits))
	copy(anchors, b.AnchorsSeen)
	return Beam{
		Path:        append(path, id),
		Score:       score,
		AnchorsSeen: append(anchors, hits...),
	}
}

func cloneBeams(beams []Beam) []Beam {
	out := make([]Beam, len(beams))
	for i, b := range beams {
		out[i] = b.Clone()
	}
	return out
}
