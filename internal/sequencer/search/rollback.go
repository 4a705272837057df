package search

import "log/slog"

// Rollback recovers from global exhaustion. It registers every failed path
// in avoid and returns the beams of the latest unconsumed checkpoint. When no
// checkpoint is available nothing is registered and ok is false.
func Rollback(checkpoints *Checkpoints, avoid *AvoidMemory, failed [][]string) (beams []Beam, from int, ok bool) {
	snap, ok := checkpoints.consume()
	if !ok {
		return nil, 0, false
	}
	for _, path := range failed {
		avoid.Register(path)
	}
	slog.Warn("rollback triggered",
		"component", "rollback",
		"checkpoint_depth", snap.Depth,
		"failed_paths", len(failed),
	)
	return snap.Beams, snap.Depth, true
}
