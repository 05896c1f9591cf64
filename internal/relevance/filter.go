// Package relevance scores candidate documents against a query.
package relevance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"medrag/internal/domain"
	"medrag/internal/embedding"
)

// placeholders are abstract stand-ins that carry no content.
var placeholders = map[string]struct{}{
	"no abstract available": {},
	"no abstract":           {},
}

// Filter keeps candidates whose cosine similarity to the query reaches a threshold.
// It holds no mutable state and is safe for concurrent use as long as the
// embedder is.
type Filter struct {
	embedder domain.Embedder
}

func NewFilter(embedder domain.Embedder) *Filter {
	return &Filter{embedder: embedder}
}

// Filter returns the passing candidates sorted by descending similarity, with
// Similarity populated. Ties keep their input order. Candidates are copied, the
// input slice is not modified.
func (f *Filter) Filter(ctx context.Context, query string, candidates []domain.Document, threshold float64) ([]domain.Document, error) {
	q, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return f.FilterVector(ctx, q, candidates, threshold)
}

// FilterVector is Filter with a precomputed query embedding.
func (f *Filter) FilterVector(ctx context.Context, query []float32, candidates []domain.Document, threshold float64) ([]domain.Document, error) {
	usable := make([]domain.Document, 0, len(candidates))
	texts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		text := strings.TrimSpace(c.Text)
		if !Usable(text) {
			continue
		}
		usable = append(usable, c)
		texts = append(texts, text)
	}
	if len(usable) == 0 {
		return nil, nil
	}
	vectors, err := f.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}
	out := make([]domain.Document, 0, len(usable))
	for i, d := range usable {
		sim := embedding.Cosine(query, vectors[i])
		if sim < threshold {
			continue
		}
		d.Similarity = sim
		out = append(out, d)
	}
	SortBySimilarity(out)
	return out, nil
}

// Usable reports whether text is real content rather than empty or a placeholder.
func Usable(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	_, isPlaceholder := placeholders[strings.ToLower(text)]
	return !isPlaceholder
}

// SortBySimilarity orders docs by descending similarity, keeping input order on ties.
func SortBySimilarity(docs []domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Similarity > docs[j].Similarity })
}
