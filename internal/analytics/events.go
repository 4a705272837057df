package analytics

import "time"

type EventType string

const (
	EventSequence EventType = "sequence"
)

// SequenceEvent describes one completed sequencing request. BestScore is nil
// when no path was found.
type SequenceEvent struct {
	Type            EventType      `json:"type"`
	PlayID          string         `json:"play_id"`
	BeatID          string         `json:"beat_id"`
	RequestID       string         `json:"request_id,omitempty"`
	CandidateCount  int            `json:"candidate_count"`
	PathLength      int            `json:"path_length"`
	BestScore       *float64       `json:"best_score"`
	Relaxed         bool           `json:"relaxed"`
	CacheHit        bool           `json:"cache_hit"`
	Rollbacks       int            `json:"rollbacks"`
	CheckpointsUsed int            `json:"checkpoints_used"`
	DepthReached    int            `json:"depth_reached"`
	Terminated      bool           `json:"terminated"`
	Pruned          map[string]int `json:"pruned,omitempty"`
	LatencyMs       int64          `json:"latency_ms"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Found reports whether the search produced a path.
func (e SequenceEvent) Found() bool {
	return e.BestScore != nil && e.PathLength > 0
}
