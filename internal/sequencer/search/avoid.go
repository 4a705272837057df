package search

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
)

const DefaultAvoidPenalty = 5.0

// pathSep joins path ids into a map key.
const pathSep = "\x1f"

// AvoidMemory remembers exact path prefixes that led to a dead end and
// charges a fixed penalty when a successor recreates one. It may be shared
// across searches.
type AvoidMemory struct {
	mu      sync.RWMutex
	penalty float64
	paths   map[string]struct{}
	order   [][]string
}

func NewAvoidMemory(penalty float64) *AvoidMemory {
	return &AvoidMemory{
		penalty: penalty,
		paths:   make(map[string]struct{}),
	}
}

func (m *AvoidMemory) Penalty() float64 {
	return m.penalty
}

// Register records path. Empty and already known paths are ignored; the
// return value reports whether path was new.
func (m *AvoidMemory) Register(path []string) bool {
	if len(path) == 0 {
		return false
	}
	key := strings.Join(path, pathSep)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.paths[key]; ok {
		return false
	}
	m.paths[key] = struct{}{}
	m.order = append(m.order, slices.Clone(path))
	slog.Debug("registered avoid path", "component", "avoid-memory", "length", len(path))
	return true
}

// PenaltyFor returns the penalty when path exactly matches a registered
// prefix, and 0 otherwise.
func (m *AvoidMemory) PenaltyFor(path []string) float64 {
	if m.Contains(path) {
		return m.penalty
	}
	return 0
}

// Contains reports whether path was registered.
func (m *AvoidMemory) Contains(path []string) bool {
	if len(path) == 0 {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.paths[strings.Join(path, pathSep)]
	return ok
}

// AvoidedPaths returns copies of the registered paths in registration order.
func (m *AvoidMemory) AvoidedPaths() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]string, len(m.order))
	for i, p := range m.order {
		out[i] = slices.Clone(p)
	}
	return out
}

func (m *AvoidMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}
