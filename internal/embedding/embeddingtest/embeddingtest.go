// Package embeddingtest provides a table-driven embedder for tests.
package embeddingtest

import (
	"context"
	"fmt"
	"sync"
)

// Embedder returns fixed vectors for known texts and Default (or an error when
// Default is nil) for anything else. It counts calls per text.
type Embedder struct {
	Vectors map[string][]float32
	Default []float32
	Err     error

	mu    sync.Mutex
	calls map[string]int
}

// New returns an embedder with the given table.
func New(vectors map[string][]float32) *Embedder {
	return &Embedder{Vectors: vectors}
}

func (e *Embedder) Name() string { return "embeddingtest" }

func (e *Embedder) Dimension() int {
	for _, v := range e.Vectors {
		return len(v)
	}
	return len(e.Default)
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[text]++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	if v, ok := e.Vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	if e.Default != nil {
		return append([]float32(nil), e.Default...), nil
	}
	return nil, fmt.Errorf("embeddingtest: no vector for %q", text)
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Calls returns how many times text was embedded.
func (e *Embedder) Calls(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[text]
}
