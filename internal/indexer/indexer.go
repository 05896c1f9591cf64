// Package indexer seeds the vector index from local files.
package indexer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"medrag/internal/chunker"
	"medrag/internal/domain"
	"medrag/internal/relevance"
	"medrag/internal/vectorstore"
)

const defaultBatchSize = 64

// Report summarizes an ingestion run.
type Report struct {
	Seen    int
	Added   int
	Skipped int
}

type Indexer struct {
	Chunker   *chunker.SentenceChunker
	Embedder  domain.Embedder
	Store     vectorstore.Storage
	BatchSize int
	Logger    *slog.Logger
}

// LoadFiles reads .txt files (one document each, split by the chunker) and
// .json files holding an array of documents. Paths may be globs.
func (ix *Indexer) LoadFiles(paths []string) ([]domain.Document, error) {
	var docs []domain.Document
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			switch strings.ToLower(filepath.Ext(m)) {
			case ".txt":
				data, err := os.ReadFile(m)
				if err != nil {
					return nil, err
				}
				doc := domain.Document{
					ID:    hashString(m),
					Title: strings.TrimSuffix(filepath.Base(m), filepath.Ext(m)),
					Text:  string(data),
				}
				if ix.Chunker != nil {
					docs = append(docs, ix.Chunker.Chunk(doc)...)
				} else {
					docs = append(docs, doc)
				}
			case ".json":
				data, err := os.ReadFile(m)
				if err != nil {
					return nil, err
				}
				var list []domain.Document
				if err := json.Unmarshal(data, &list); err != nil {
					return nil, fmt.Errorf("parsing %s: %w", m, err)
				}
				docs = append(docs, list...)
			}
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no .txt or .json documents found")
	}
	return docs, nil
}

// Ingest embeds and appends the documents the store does not know yet.
// Documents without an ID or with placeholder text are skipped.
func (ix *Indexer) Ingest(ctx context.Context, docs []domain.Document) (Report, error) {
	logger := ix.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "indexer")
	rep := Report{Seen: len(docs)}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	known, err := ix.Store.Known(ctx, ids)
	if err != nil {
		return rep, fmt.Errorf("known: %w", err)
	}

	fresh := make([]domain.Document, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d.ID == "" || known[d.ID] || seen[d.ID] || !relevance.Usable(d.Text) {
			continue
		}
		seen[d.ID] = true
		fresh = append(fresh, d)
	}
	rep.Skipped = len(docs) - len(fresh)

	size := ix.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	for start := 0; start < len(fresh); start += size {
		batch := fresh[start:min(start+size, len(fresh))]
		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Text
		}
		vecs, err := ix.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return rep, fmt.Errorf("embed: %w", err)
		}
		if _, err := ix.Store.Append(ctx, batch, vecs); err != nil {
			return rep, fmt.Errorf("append: %w", err)
		}
		rep.Added += len(batch)
		logger.Info("batch indexed", "added", rep.Added, "total", len(fresh))
	}
	return rep, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
