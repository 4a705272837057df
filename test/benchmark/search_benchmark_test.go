// Package benchmark contains Go benchmarks for the beam search, candidate
// enrichment and the HTTP sequencing path, measuring throughput and
// allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/constraint"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/reuse"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/search"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/transition"
)

var words = []string{
	"crown", "ember", "tide", "shadow", "lantern", "thorn", "raven", "marrow",
	"orchard", "frost", "hollow", "kestrel", "ivory", "cinder", "gossamer", "dusk",
}

func candidates(n int) []chunk.Chunk {
	out := make([]chunk.Chunk, 0, n)
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("%s of %s %s", words[i%len(words)], words[(i*7)%len(words)], words[(i*3+1)%len(words)])
		c := chunk.New(fmt.Sprintf("c%05d", i), text)
		c.Features.SyllableCount = 4 + i%6
		v := float64(i%11)/5 - 1
		c.Features.Valence = &v
		c.Features.StressPattern = []string{"0101", "1010", "0110"}[i%3]
		out = append(out, c)
	}
	return out
}

func benchGuidance() guidance.Profile {
	return guidance.Profile{
		BeatID:        "bench_beat",
		AnchorTargets: []string{"crown", "raven"},
		Constraints:   map[string]float64{guidance.RequiredAnchorCount: 1},
		Priors: map[string]float64{
			guidance.AnchorPresence:   1,
			guidance.LengthPreference: 0.1,
			guidance.MeterPreference:  0.5,
			guidance.EmotionAlignment: 0.5,
			guidance.TargetValence:    0.2,
		},
	}
}

// BenchmarkBeamSearch measures a full search across pool sizes and beam
// widths.
func BenchmarkBeamSearch(b *testing.B) {
	for _, pool := range []int{50, 500, 2000} {
		store, err := chunk.NewStore(candidates(pool))
		if err != nil {
			b.Fatal(err)
		}
		for _, width := range []int{1, 4, 16} {
			b.Run(fmt.Sprintf("pool_%d/beam_%d", pool, width), func(b *testing.B) {
				engine := search.NewEngine(store)
				req := search.Request{
					Guidance: benchGuidance(),
					Params:   search.Params{BeamWidth: width, MaxLength: 6, CheckpointInterval: 2},
				}
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := engine.Run(context.Background(), req); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// BenchmarkBeamSearchWithMeter adds the optional meter and rhyme
// constraints to the default chain.
func BenchmarkBeamSearchWithMeter(b *testing.B) {
	store, err := chunk.NewStore(candidates(500))
	if err != nil {
		b.Fatal(err)
	}
	engine := search.NewEngine(store)
	req := search.Request{
		Guidance:    benchGuidance(),
		Params:      search.Params{BeamWidth: 4, MaxLength: 6, CheckpointInterval: 2},
		Constraints: []constraint.Constraint{constraint.NewMeter(0.5), constraint.NewRhyme("ABAB")},
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Run(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBeamSearchParallel measures concurrent searches sharing one
// engine.
func BenchmarkBeamSearchParallel(b *testing.B) {
	store, err := chunk.NewStore(candidates(500))
	if err != nil {
		b.Fatal(err)
	}
	engine := search.NewEngine(store)
	req := search.Request{
		Guidance: benchGuidance(),
		Params:   search.Params{BeamWidth: 4, MaxLength: 6, CheckpointInterval: 2},
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := engine.Run(context.Background(), req); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkEnumerate measures one expansion step over the whole pool.
func BenchmarkEnumerate(b *testing.B) {
	for _, pool := range []int{100, 1000, 5000} {
		b.Run(fmt.Sprintf("pool_%d", pool), func(b *testing.B) {
			store, err := chunk.NewStore(candidates(pool))
			if err != nil {
				b.Fatal(err)
			}
			prev := store.All()[0]
			tracker := reuse.FromPath([]string{prev.ID})
			enum := transition.New(store, tracker).WithPath([]*chunk.Chunk{prev})
			g := benchGuidance()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := enum.Enumerate(g, nil, prev.ID); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
