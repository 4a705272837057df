// Package reuse tracks chunk identifiers consumed along one beam path.
package reuse

// Tracker is a set of consumed chunk identifiers. It is rebuilt from a
// beam's own path before every enumeration, so sibling beams may share
// chunks.
type Tracker struct {
	used map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{used: make(map[string]struct{})}
}

// FromPath returns a tracker seeded with every id in path.
func FromPath(path []string) *Tracker {
	t := &Tracker{used: make(map[string]struct{}, len(path))}
	t.MarkUsedMany(path)
	return t
}

func (t *Tracker) IsUsed(id string) bool {
	_, ok := t.used[id]
	return ok
}

func (t *Tracker) MarkUsed(id string) {
	t.used[id] = struct{}{}
}

func (t *Tracker) MarkUsedMany(ids []string) {
	for _, id := range ids {
		t.used[id] = struct{}{}
	}
}

func (t *Tracker) Reset() {
	clear(t.used)
}

func (t *Tracker) Len() int {
	return len(t.used)
}
