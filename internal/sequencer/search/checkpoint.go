package search

import "log/slog"

// Snapshot is an independently owned copy of the live beams at a depth.
type Snapshot struct {
	Depth int
	Beams []Beam
}

// Checkpoints is the stack of snapshots taken during one search. The latest
// snapshot may be restored once; a later Save makes a new one available.
type Checkpoints struct {
	snapshots []Snapshot
	consumed  bool
	logger    *slog.Logger
}

func NewCheckpoints() *Checkpoints {
	return &Checkpoints{
		logger: slog.Default().With("component", "checkpoints"),
	}
}

// Save deep-copies beams and pushes them as the latest snapshot.
func (c *Checkpoints) Save(depth int, beams []Beam) {
	c.snapshots = append(c.snapshots, Snapshot{Depth: depth, Beams: cloneBeams(beams)})
	c.consumed = false
	c.logger.Debug("checkpoint saved", "depth", depth, "beams", len(beams))
}

// Latest returns a copy of the most recent snapshot.
func (c *Checkpoints) Latest() (Snapshot, bool) {
	if len(c.snapshots) == 0 {
		return Snapshot{}, false
	}
	s := c.snapshots[len(c.snapshots)-1]
	return Snapshot{Depth: s.Depth, Beams: cloneBeams(s.Beams)}, true
}

// Count is the number of snapshots saved so far.
func (c *Checkpoints) Count() int {
	return len(c.snapshots)
}

// consume returns the latest snapshot unless it was already restored.
func (c *Checkpoints) consume() (Snapshot, bool) {
	if c.consumed {
		return Snapshot{}, false
	}
	s, ok := c.Latest()
	if !ok {
		return Snapshot{}, false
	}
	c.consumed = true
	return s, true
}
