package chunk

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/errors"
)

// Store is the fixed candidate set for one search. It preserves input order
// and is never modified after construction.
type Store struct {
	chunks []*Chunk
	byID   map[string]*Chunk
}

// NewStore copies chunks into a Store. Empty or repeated identifiers are
// rejected.
func NewStore(chunks []Chunk) (*Store, error) {
	s := &Store{
		chunks: make([]*Chunk, 0, len(chunks)),
		byID:   make(map[string]*Chunk, len(chunks)),
	}
	for i := range chunks {
		c := chunks[i]
		if c.ID == "" {
			return nil, fmt.Errorf("chunk at index %d: empty id: %w", i, apperrors.ErrInvalidInput)
		}
		if _, exists := s.byID[c.ID]; exists {
			return nil, fmt.Errorf("chunk %q: %w", c.ID, apperrors.ErrDuplicateChunk)
		}
		s.chunks = append(s.chunks, &c)
		s.byID[c.ID] = &c
	}
	return s, nil
}

// Get resolves id. A miss means the caller changed the candidate set
// mid-search and is reported as ErrChunkNotFound.
func (s *Store) Get(id string) (*Chunk, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("chunk %q: %w", id, apperrors.ErrChunkNotFound)
	}
	return c, nil
}

// Resolve looks up every id in order.
func (s *Store) Resolve(ids []string) ([]*Chunk, error) {
	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// All returns the chunks in input order.
func (s *Store) All() []*Chunk {
	return s.chunks
}

// IDs returns the chunk identifiers in input order.
func (s *Store) IDs() []string {
	ids := make([]string, len(s.chunks))
	for i, c := range s.chunks {
		ids[i] = c.ID
	}
	return ids
}

func (s *Store) Len() int {
	return len(s.chunks)
}
