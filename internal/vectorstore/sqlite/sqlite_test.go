package sqlite

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/domain"
)

func openTestStore(t *testing.T, path string) *Storage {
	t.Helper()
	s, err := Open(context.Background(), Options{Path: path, Embedder: "hashing"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func docs(ids ...string) []domain.Document {
	out := make([]domain.Document, len(ids))
	for i, id := range ids {
		out[i] = domain.Document{ID: id, Title: "Title " + id, Text: "Body of " + id}
	}
	return out
}

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "nested", "index.db"))
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAppend_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(ctx, Options{Path: path, Embedder: "hashing"})
	require.NoError(t, err)
	pos, err := s.Append(ctx, docs("a", "b"), [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, pos)
	pos, err = s.Append(ctx, docs("c"), [][]float32{{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, pos)
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	n, _ := reopened.Count(ctx)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, reopened.MappingLen())

	hits, err := reopened.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	got, err := reopened.Lookup(ctx, []int{hits[0].Position})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "Body of b", got[0].Text)
}

func TestAppend_FailureLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	s := openTestStore(t, path)

	_, err := s.Append(ctx, docs("a"), [][]float32{{1, 0}})
	require.NoError(t, err)
	_, err = s.Append(ctx, docs("b", "a"), [][]float32{{0, 1}, {1, 1}})
	require.Error(t, err)

	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)

	var rows int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM id_mapping`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestOpen_CorruptFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("not a database "), 512), 0o644))

	s := openTestStore(t, path)
	n, _ := s.Count(context.Background())
	assert.Zero(t, n)

	matches, err := filepath.Glob(filepath.Join(dir, "index.db.corrupt-*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestOpen_DifferentEmbedderStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(ctx, Options{Path: path, Embedder: "hashing"})
	require.NoError(t, err)
	_, err = s.Append(ctx, docs("a"), [][]float32{{1}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	other, err := Open(ctx, Options{Path: path, Embedder: "openai"})
	require.NoError(t, err)
	defer other.Close()
	n, _ := other.Count(ctx)
	assert.Zero(t, n)
}

func TestRestore_TrimsInconsistentTail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	_, err = s.Append(ctx, docs("a", "b"), [][]float32{{1}, {2}})
	require.NoError(t, err)
	// simulate a crash between the vector write and the mapping write
	_, err = s.db.ExecContext(ctx, `INSERT INTO vectors(position, embedding) VALUES(2, ?)`, encodeEmbedding([]float32{3}))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	n, _ := reopened.Count(ctx)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, reopened.MappingLen())
}

func TestRestore_TrimmedDocumentCanBeAppendedAgain(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	_, err = s.Append(ctx, docs("a", "b"), [][]float32{{1}, {2}})
	require.NoError(t, err)
	// lose the mapping row of "b" while its vector and document survive
	_, err = s.db.ExecContext(ctx, `DELETE FROM id_mapping WHERE position = 1`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	n, _ := reopened.Count(ctx)
	assert.Equal(t, 1, n)
	known, err := reopened.Known(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, known["a"])
	assert.False(t, known["b"])

	pos, err := reopened.Append(ctx, docs("b"), [][]float32{{2}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pos)
	got, err := reopened.Lookup(ctx, []int{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestEncoding_RoundTrip(t *testing.T) {
	orig := []float32{0, 1.5, -2.25, 3.75}
	got, err := decodeEmbedding(encodeEmbedding(orig))
	require.NoError(t, err)
	assert.Equal(t, orig, got)

	_, err = decodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}
