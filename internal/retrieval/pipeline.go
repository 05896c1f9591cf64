// Package retrieval implements the hybrid lookup: local vector index first,
// external literature on a miss, with newly found documents written back.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"medrag/internal/domain"
	"medrag/internal/relevance"
	"medrag/internal/vectorstore"
)

const (
	DefaultMaxCandidates     = 50
	DefaultThreshold         = 0.5
	DefaultLiteratureTimeout = 10 * time.Second
)

// Options tunes a single Retrieve call. Zero values take the defaults.
type Options struct {
	K             int
	MaxCandidates int
	Threshold     float64
}

// Result is the outcome of a retrieval.
type Result struct {
	Documents       []domain.Document `json:"documents"`
	ServedFromIndex bool              `json:"served_from_index"`
	IndexUpdated    bool              `json:"index_updated"`
}

// Pipeline is safe for concurrent use. Reads run in parallel; writes to the
// store are serialized by writeMu.
type Pipeline struct {
	store             vectorstore.Storage
	embedder          domain.Embedder
	filter            *relevance.Filter
	source            domain.LiteratureSource
	literatureTimeout time.Duration
	logger            *slog.Logger

	writeMu sync.Mutex
}

type Config struct {
	Store    vectorstore.Storage
	Embedder domain.Embedder
	// Filter defaults to a relevance.Filter over Embedder.
	Filter *relevance.Filter
	// Source may be nil, in which case misses are served from the index only.
	Source            domain.LiteratureSource
	LiteratureTimeout time.Duration
	Logger            *slog.Logger
}

func New(cfg Config) *Pipeline {
	p := &Pipeline{
		store:             cfg.Store,
		embedder:          cfg.Embedder,
		filter:            cfg.Filter,
		source:            cfg.Source,
		literatureTimeout: cfg.LiteratureTimeout,
		logger:            cfg.Logger,
	}
	if p.filter == nil {
		p.filter = relevance.NewFilter(cfg.Embedder)
	}
	if p.literatureTimeout <= 0 {
		p.literatureTimeout = DefaultLiteratureTimeout
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "retrieval")
	return p
}

// Retrieve returns up to opts.K documents relevant to query.
func (p *Pipeline) Retrieve(ctx context.Context, query string, opts Options) (Result, error) {
	opts = withDefaults(opts)
	if strings.TrimSpace(query) == "" {
		return Result{}, domain.ErrEmptyQuestion
	}

	qvec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}

	local, err := p.searchLocal(ctx, qvec, opts)
	if err != nil {
		return Result{}, err
	}
	if len(local) >= min(3, opts.K) {
		p.logger.Debug("served from index", "query", query, "hits", len(local))
		return Result{Documents: top(local, opts.K), ServedFromIndex: true}, nil
	}

	fallback := Result{Documents: top(local, opts.K), ServedFromIndex: len(local) > 0}
	if p.source == nil {
		return fallback, nil
	}

	fetched := p.fetch(ctx, query, opts.MaxCandidates)
	if len(fetched) == 0 {
		return fallback, nil
	}
	relevant, err := p.filter.FilterVector(ctx, qvec, fetched, opts.Threshold)
	if err != nil {
		p.logger.Warn("scoring literature results failed", "error", err)
		return fallback, nil
	}
	if len(relevant) == 0 {
		p.logger.Debug("no literature result passed the threshold", "query", query, "fetched", len(fetched))
		return fallback, nil
	}

	added, err := p.writeBack(ctx, relevant)
	if err != nil {
		return Result{}, err
	}
	p.logger.Info("index updated from literature", "source", p.source.Name(), "added", added, "relevant", len(relevant))

	merged := merge(local, relevant)
	return Result{
		Documents:       top(merged, opts.K),
		ServedFromIndex: len(local) > 0,
		IndexUpdated:    true,
	}, nil
}

func (p *Pipeline) searchLocal(ctx context.Context, qvec []float32, opts Options) ([]domain.Document, error) {
	n, err := p.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count index: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	hits, err := p.store.Search(ctx, qvec, opts.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	positions := make([]int, len(hits))
	for i, h := range hits {
		positions[i] = h.Position
	}
	docs, err := p.store.Lookup(ctx, positions)
	if err != nil {
		return nil, fmt.Errorf("resolve positions: %w", err)
	}
	return p.filter.FilterVector(ctx, qvec, docs, opts.Threshold)
}

// fetch queries the literature source. Failures degrade to no results.
func (p *Pipeline) fetch(ctx context.Context, query string, max int) []domain.Document {
	ctx, cancel := context.WithTimeout(ctx, p.literatureTimeout)
	defer cancel()
	docs, err := p.source.Search(ctx, query, max)
	if err != nil {
		p.logger.Warn("literature search failed", "source", p.source.Name(), "error", err)
		return nil
	}
	return docs
}

// writeBack appends the documents not yet stored and returns how many were added.
func (p *Pipeline) writeBack(ctx context.Context, docs []domain.Document) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	known, err := p.store.Known(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("check stored ids: %w", err)
	}

	var fresh []domain.Document
	var texts []string
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if d.ID == "" || known[d.ID] || !relevance.Usable(d.Text) {
			continue
		}
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		d.Similarity = 0
		fresh = append(fresh, d)
		// embed exactly what the relevance filter scored
		texts = append(texts, strings.TrimSpace(d.Text))
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed new documents: %w", err)
	}
	if _, err := p.store.Append(ctx, fresh, vectors); err != nil {
		return 0, fmt.Errorf("append to index: %w", err)
	}
	return len(fresh), nil
}

// merge concatenates local and fresh, dropping fresh documents whose ID is
// already present, then sorts by similarity. Local documents win ties.
func merge(local, fresh []domain.Document) []domain.Document {
	out := make([]domain.Document, 0, len(local)+len(fresh))
	seen := make(map[string]struct{}, len(local)+len(fresh))
	for _, group := range [][]domain.Document{local, fresh} {
		for _, d := range group {
			if _, ok := seen[d.ID]; ok {
				continue
			}
			seen[d.ID] = struct{}{}
			out = append(out, d)
		}
	}
	relevance.SortBySimilarity(out)
	return out
}

func top(docs []domain.Document, k int) []domain.Document {
	if len(docs) > k {
		return docs[:k]
	}
	return docs
}

func withDefaults(o Options) Options {
	if o.K <= 0 {
		o.K = 5
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	if o.MaxCandidates < o.K {
		o.MaxCandidates = o.K
	}
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	return o
}
