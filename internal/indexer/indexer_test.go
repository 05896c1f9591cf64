package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/chunker"
	"medrag/internal/domain"
	"medrag/internal/embedding/hashing"
	"medrag/internal/vectorstore/memory"
)

func newIndexer() *Indexer {
	return &Indexer{
		Chunker:   chunker.NewSentenceChunker(2, 0),
		Embedder:  hashing.NewEmbedder(64),
		Store:     memory.NewStorage(),
		BatchSize: 2,
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "asthma.txt"),
		[]byte("Asthma narrows the airways. Inhalers relieve symptoms. Triggers include pollen."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs.json"),
		[]byte(`[{"id":"p1","title":"Flu","text":"Influenza is a viral infection."}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))

	docs, err := newIndexer().LoadFiles([]string{filepath.Join(dir, "*")})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, "p1")
	assert.Contains(t, docs[0].Title+docs[1].Title+docs[2].Title, "asthma (part 1/2)")
}

func TestLoadFiles_NothingFound(t *testing.T) {
	_, err := newIndexer().LoadFiles([]string{filepath.Join(t.TempDir(), "*.txt")})
	assert.Error(t, err)
}

func TestIngest_SkipsKnownDuplicatesAndPlaceholders(t *testing.T) {
	ix := newIndexer()
	ctx := context.Background()
	docs := []domain.Document{
		{ID: "a", Title: "A", Text: "Metformin lowers blood glucose."},
		{ID: "b", Title: "B", Text: "Statins reduce cholesterol."},
		{ID: "a", Title: "A again", Text: "duplicate"},
		{ID: "c", Title: "C", Text: "No abstract available"},
		{ID: "d", Title: "D", Text: "Beta blockers slow the heart rate."},
	}
	rep, err := ix.Ingest(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, Report{Seen: 5, Added: 3, Skipped: 2}, rep)

	rep, err = ix.Ingest(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Added)

	n, err := ix.Store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
