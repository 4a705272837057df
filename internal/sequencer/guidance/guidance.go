// Package guidance defines the per-beat profile handed to the sequencer by
// the narrative layer: anchor targets, hard-constraint parameters and soft
// scoring weights.
package guidance

import "maps"

// Constraint keys.
const (
	RequiredAnchorCount = "required_anchor_count"
)

// Prior keys.
const (
	AnchorPresence   = "anchor_presence"
	LengthPreference = "length_preference"
	MeterPreference  = "meter_preference"
	EmotionAlignment = "emotion_alignment"
	TargetValence    = "target_valence"
	TargetLength     = "target_length"
)

// Built-in weights for the two priors that have documented defaults. Every
// other missing prior reads as zero.
const (
	DefaultAnchorPresence   = 1.0
	DefaultLengthPreference = 0.1
)

// Profile is immutable once handed to a search.
type Profile struct {
	BeatID        string             `json:"beat_id" yaml:"beatId"`
	AnchorTargets []string           `json:"anchor_targets" yaml:"anchorTargets"`
	Constraints   map[string]float64 `json:"constraints" yaml:"constraints"`
	Priors        map[string]float64 `json:"priors" yaml:"priors"`
}

// Prior returns the named weight or def when absent. Reading a nil map is
// safe, so malformed profiles never fault.
func (p Profile) Prior(key string, def float64) float64 {
	if v, ok := p.Priors[key]; ok {
		return v
	}
	return def
}

// Constraint returns the named constraint parameter or zero.
func (p Profile) Constraint(key string) float64 {
	return p.Constraints[key]
}

// RequiredAnchors is the number of anchor hits a path must collect before
// candidates stop being filtered on anchor presence.
func (p Profile) RequiredAnchors() int {
	return int(p.Constraint(RequiredAnchorCount))
}

// Relaxed returns a copy with the anchor requirement dropped, the profile a
// caller retries with after an empty result.
func (p Profile) Relaxed() Profile {
	out := p
	out.AnchorTargets = append([]string(nil), p.AnchorTargets...)
	out.Priors = maps.Clone(p.Priors)
	out.Constraints = maps.Clone(p.Constraints)
	if out.Constraints == nil {
		out.Constraints = make(map[string]float64)
	}
	out.Constraints[RequiredAnchorCount] = 0
	return out
}
