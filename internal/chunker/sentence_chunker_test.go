package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/domain"
)

func TestChunk_SingleChunkKeepsID(t *testing.T) {
	c := NewSentenceChunker(5, 1)
	got := c.Chunk(domain.Document{ID: "doc", Title: "T", Text: "One. Two."})
	require.Len(t, got, 1)
	assert.Equal(t, domain.Document{ID: "doc", Title: "T", Text: "One. Two."}, got[0])
}

func TestChunk_OverlapAndTail(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	got := c.Chunk(domain.Document{ID: "d", Title: "T", Text: "A one. B two! C three? D four without stop"})
	require.Len(t, got, 3)
	assert.Equal(t, "A one. B two!", got[0].Text)
	assert.Equal(t, "B two! C three?", got[1].Text)
	assert.Equal(t, "C three? D four without stop", got[2].Text)
	assert.Equal(t, "d#2", got[2].ID)
	assert.Equal(t, "T (part 3/3)", got[2].Title)
}

func TestChunk_Empty(t *testing.T) {
	assert.Nil(t, NewSentenceChunker(3, 0).Chunk(domain.Document{ID: "x", Text: "  "}))
}

func TestNewSentenceChunker_ClampsOverlap(t *testing.T) {
	c := NewSentenceChunker(2, 5)
	got := c.Chunk(domain.Document{ID: "d", Text: "A. B. C. D."})
	assert.Len(t, got, 3)
}
