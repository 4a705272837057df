package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/chunk"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/constraint"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/guidance"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/search"
)

// Fixture is one offline search: a beat's guidance, its candidate pool and
// the search settings. Omitted settings take the service defaults.
type Fixture struct {
	Guidance       guidance.Profile `yaml:"guidance"`
	Candidates     []chunk.Chunk    `yaml:"candidates"`
	Params         *search.Params   `yaml:"params"`
	InitialAnchors []string         `yaml:"initialAnchors"`
	// Avoid lists dead-end prefixes carried over from earlier runs.
	Avoid           [][]string `yaml:"avoid"`
	AvoidPenalty    *float64   `yaml:"avoidPenalty"`
	TargetLength    float64    `yaml:"targetLength"`
	MeterStrictness float64    `yaml:"meterStrictness"`
	RhymeScheme     string     `yaml:"rhymeScheme"`
}

func loadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	for i := range f.Candidates {
		f.Candidates[i] = chunk.Enrich(f.Candidates[i])
	}
	return &f, nil
}

// constraints returns the optional constraints the fixture enables.
func (f *Fixture) constraints() []constraint.Constraint {
	var out []constraint.Constraint
	if f.MeterStrictness > 0 {
		out = append(out, constraint.NewMeter(f.MeterStrictness))
	}
	if f.RhymeScheme != "" {
		out = append(out, constraint.NewRhyme(f.RhymeScheme))
	}
	return out
}

// avoidMemory seeds an avoid memory with the fixture's dead ends.
func (f *Fixture) avoidMemory() *search.AvoidMemory {
	penalty := search.DefaultAvoidPenalty
	if f.AvoidPenalty != nil {
		penalty = *f.AvoidPenalty
	}
	mem := search.NewAvoidMemory(penalty)
	for _, path := range f.Avoid {
		mem.Register(path)
	}
	return mem
}
