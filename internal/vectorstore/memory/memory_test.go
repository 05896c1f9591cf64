package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/domain"
)

func doc(id string) domain.Document {
	return domain.Document{ID: id, Title: "T " + id, Text: "text " + id}
}

func TestAppendAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	pos, err := s.Append(ctx, []domain.Document{doc("a"), doc("b"), doc("c")}, [][]float32{{0, 0}, {1, 0}, {5, 5}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, pos)

	hits, err := s.Search(ctx, []float32{0.9, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Position)
	assert.Equal(t, 0, hits[1].Position)
	assert.InDelta(t, 0.01, hits[0].Distance, 1e-6)

	n, _ := s.Count(ctx)
	assert.Equal(t, 3, n)
	assert.Equal(t, n, s.MappingLen())
}

func TestSearch_EmptyAndMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	hits, err := s.Search(ctx, []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = s.Append(ctx, []domain.Document{doc("a")}, [][]float32{{1, 2}})
	require.NoError(t, err)
	_, err = s.Search(ctx, []float32{1, 2, 3}, 5)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestAppend_RejectsDuplicatesAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	_, err := s.Append(ctx, []domain.Document{doc("a")}, [][]float32{{1}})
	require.NoError(t, err)

	_, err = s.Append(ctx, []domain.Document{doc("b"), doc("a")}, [][]float32{{2}, {3}})
	assert.Error(t, err)

	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n, "failed append must not leave partial state")
	assert.Equal(t, 1, s.MappingLen())
}

func TestAppend_RejectsEmptyText(t *testing.T) {
	s := NewStorage()
	_, err := s.Append(context.Background(), []domain.Document{{ID: "x"}}, [][]float32{{1}})
	assert.Error(t, err)
}

func TestLookup_DropsUnknownPositions(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	_, err := s.Append(ctx, []domain.Document{doc("a"), doc("b")}, [][]float32{{1}, {2}})
	require.NoError(t, err)

	docs, err := s.Lookup(ctx, []int{1, 7, -1, 0})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "a", docs[1].ID)
}

func TestKnown(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	_, _ = s.Append(ctx, []domain.Document{doc("a")}, [][]float32{{1}})

	known, err := s.Known(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, known["a"])
	assert.False(t, known["b"])
}

func TestRestore(t *testing.T) {
	s := NewStorage()
	err := s.Restore([][]float32{{1}, {2}}, []string{"a", "b"}, []domain.Document{doc("a"), doc("b")})
	require.NoError(t, err)
	docs, _ := s.Lookup(context.Background(), []int{0, 1})
	assert.Len(t, docs, 2)

	assert.Error(t, s.Restore([][]float32{{1}}, nil, nil))
}

func TestRestore_DropsUnreferencedDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Restore([][]float32{{1}}, []string{"a"}, []domain.Document{doc("a"), doc("b")}))

	known, err := s.Known(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, known["a"])
	assert.False(t, known["b"])

	pos, err := s.Append(ctx, []domain.Document{doc("b")}, [][]float32{{2}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, pos)
}

func TestConcurrentAppendKeepsMappingInSync(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('a' + i))
			_, _ = s.Append(ctx, []domain.Document{doc(id)}, [][]float32{{float32(i)}})
			_, _ = s.Search(ctx, []float32{1}, 3)
		}()
	}
	wg.Wait()
	n, _ := s.Count(ctx)
	assert.Equal(t, 20, n)
	assert.Equal(t, n, s.MappingLen())
}
