package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"medrag/internal/domain"
	"medrag/internal/embedding"
)

// Storage is an in-memory flat index using exact squared Euclidean distance.
// Existing positions are never mutated, so readers only contend with appends.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	ids       []string
	docs      map[string]domain.Document
}

func NewStorage() *Storage {
	return &Storage{docs: make(map[string]domain.Document)}
}

// Restore replaces the contents with previously persisted state.
// vectors and ids must be parallel; docs not referenced by ids are dropped so
// they can be appended again.
func (s *Storage) Restore(vectors [][]float32, ids []string, docs []domain.Document) error {
	if len(vectors) != len(ids) {
		return fmt.Errorf("restore: %d vectors for %d ids", len(vectors), len(ids))
	}
	dim := 0
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return fmt.Errorf("restore: %w", domain.ErrDimensionMismatch)
		}
	}
	referenced := make(map[string]bool, len(ids))
	for _, id := range ids {
		referenced[id] = true
	}
	table := make(map[string]domain.Document, len(ids))
	for _, d := range docs {
		if referenced[d.ID] {
			table[d.ID] = d
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dim
	s.vectors = append([][]float32(nil), vectors...)
	s.ids = append([]string(nil), ids...)
	s.docs = table
	return nil
}

// Validate checks that an Append with these arguments would succeed,
// without modifying anything.
func (s *Storage) Validate(docs []domain.Document, vectors [][]float32) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validateLocked(docs, vectors)
}

func (s *Storage) validateLocked(docs []domain.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("documents and vectors length mismatch: %d != %d", len(docs), len(vectors))
	}
	dim := s.dimension
	seen := make(map[string]struct{}, len(docs))
	for i, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) == 0 || len(v) != dim {
			return domain.ErrDimensionMismatch
		}
		id := docs[i].ID
		if id == "" {
			return fmt.Errorf("document %d has no id", i)
		}
		if docs[i].Text == "" {
			return fmt.Errorf("document %q has no text", id)
		}
		if _, dup := s.docs[id]; dup {
			return fmt.Errorf("document %q already stored", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("document %q repeated in batch", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (s *Storage) Append(_ context.Context, docs []domain.Document, vectors [][]float32) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validateLocked(docs, vectors); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	if s.dimension == 0 {
		s.dimension = len(vectors[0])
	}
	positions := make([]int, len(docs))
	for i, d := range docs {
		positions[i] = len(s.vectors)
		d.Similarity = 0
		s.vectors = append(s.vectors, vectors[i])
		s.ids = append(s.ids, d.ID)
		s.docs[d.ID] = d
	}
	return positions, nil
}

func (s *Storage) Search(_ context.Context, vector []float32, k int) ([]domain.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	hits := make([]domain.Neighbor, len(s.vectors))
	for i := range s.vectors {
		hits[i] = domain.Neighbor{Position: i, Distance: embedding.SquaredL2(s.vectors[i], vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func (s *Storage) Lookup(_ context.Context, positions []int) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0, len(positions))
	for _, p := range positions {
		if p < 0 || p >= len(s.ids) {
			continue
		}
		d, ok := s.docs[s.ids[p]]
		if !ok {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Storage) Known(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.docs[id]; ok {
			known[id] = true
		}
	}
	return known, nil
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

// MappingLen returns the length of the ID mapping.
func (s *Storage) MappingLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *Storage) Close() error { return nil }
