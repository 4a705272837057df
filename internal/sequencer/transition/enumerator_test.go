package transition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/constraint"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/reuse"
	apperrors "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/errors"
)

func buildStore(t *testing.T) *chunk.Store {
	t.Helper()
	store, err := chunk.NewStore([]chunk.Chunk{
		chunk.New("c1", "And now the night begins"),
		chunk.New("c2", "Night calls to night"),
		chunk.New("c3", "The crown remembers fire"),
	})
	require.NoError(t, err)
	return store
}

func buildGuidance(required int) guidance.Profile {
	return guidance.Profile{
		BeatID:        "act1_scene1_beat1",
		AnchorTargets: []string{"fire", "crown"},
		Constraints:   map[string]float64{guidance.RequiredAnchorCount: float64(required)},
	}
}

func TestEnumerateEnforcesReuseAndAnchor(t *testing.T) {
	tracker := reuse.NewTracker()
	tracker.MarkUsed("c2")

	result, err := New(buildStore(t), tracker).Enumerate(buildGuidance(1), nil, "c2")
	require.NoError(t, err)

	assert.Equal(t, []string{"c3"}, result.Legal)
	assert.Equal(t, constraint.ReasonReuse, result.Pruned["c2"])
	assert.Equal(t, constraint.ReasonAnchorMissing, result.Pruned["c1"])
	assert.NotContains(t, result.Pruned, "c3")
}

func TestEnumerateAllowsWhenNoAnchorRequired(t *testing.T) {
	result, err := New(buildStore(t), reuse.NewTracker()).Enumerate(buildGuidance(0), nil, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2", "c3"}, result.Legal)
	assert.Empty(t, result.Pruned)
}

func TestEnumerateNoCandidateHasAnchor(t *testing.T) {
	store, err := chunk.NewStore([]chunk.Chunk{
		chunk.New("c1", "Love is bright"),
		chunk.New("c2", "The night grows"),
		chunk.New("c3", "Stars above us"),
	})
	require.NoError(t, err)
	g := guidance.Profile{
		BeatID:        "beat-1",
		AnchorTargets: []string{"sword"},
		Constraints:   map[string]float64{guidance.RequiredAnchorCount: 1},
	}

	result, err := New(store, reuse.NewTracker()).Enumerate(g, nil, "")
	require.NoError(t, err)

	assert.Empty(t, result.Legal)
	assert.Equal(t, map[constraint.Reason][]string{
		constraint.ReasonAnchorMissing: {"c1", "c2", "c3"},
	}, result.ByReason())
}

func TestEnumerateShortCircuitsOnAdjacency(t *testing.T) {
	// p ends with "of": "The fire" collides, "Fire and crown" does not.
	store, err := chunk.NewStore([]chunk.Chunk{
		chunk.New("p", "Bring me the crown of"),
		chunk.New("a", "The fire"),
		chunk.New("b", "Fire and crown"),
	})
	require.NoError(t, err)

	result, err := New(store, reuse.FromPath([]string{"p"})).Enumerate(buildGuidance(1), nil, "p")
	require.NoError(t, err)

	assert.Equal(t, constraint.ReasonReuse, result.Pruned["p"])
	assert.Equal(t, constraint.ReasonFunctionWordCollision, result.Pruned["a"])
	assert.Equal(t, []string{"b"}, result.Legal)
}

func TestEnumerateUnknownPrevious(t *testing.T) {
	_, err := New(buildStore(t), reuse.NewTracker()).Enumerate(buildGuidance(0), nil, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrChunkNotFound)
}

func TestEnumerateExtraConstraintsArePluggable(t *testing.T) {
	store, err := chunk.NewStore([]chunk.Chunk{
		{ID: "l1", Text: "bright", Tokens: []string{"bright"}, Features: chunk.Features{RhymeClass: "AY_T"}},
		{ID: "l2", Text: "night", Tokens: []string{"night"}, Features: chunk.Features{RhymeClass: "AY_T"}},
		{ID: "l3", Text: "day", Tokens: []string{"day"}, Features: chunk.Features{RhymeClass: "EY"}},
	})
	require.NoError(t, err)
	first, err := store.Get("l1")
	require.NoError(t, err)

	e := New(store, reuse.FromPath([]string{"l1"}), constraint.NewRhyme("AA")).WithPath([]*chunk.Chunk{first})
	result, err := e.Enumerate(buildGuidance(0), nil, "l1")
	require.NoError(t, err)

	assert.Equal(t, []string{"l2"}, result.Legal)
	assert.Equal(t, constraint.ReasonRhymeMismatch, result.Pruned["l3"])
}
