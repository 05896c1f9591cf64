package vectorstore

import (
	"context"

	"medrag/internal/domain"
)

// Storage owns the vector index together with the ordered ID mapping and the
// document table. Position i of the index always corresponds to mapping entry i.
type Storage interface {
	// Search returns up to k nearest positions ordered by ascending distance.
	Search(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error)

	// Append adds docs and their vectors as one unit: index, mapping and table
	// are all updated (and persisted, where the backend is durable) or none is.
	// Document IDs must not already be stored. The assigned positions are
	// returned in insertion order.
	Append(ctx context.Context, docs []domain.Document, vectors [][]float32) ([]int, error)

	// Lookup resolves positions to documents, silently dropping positions that
	// are out of range or whose ID has no table entry. Order is preserved.
	Lookup(ctx context.Context, positions []int) ([]domain.Document, error)

	// Known reports which of ids are already stored.
	Known(ctx context.Context, ids []string) (map[string]bool, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)

	Close() error
}
