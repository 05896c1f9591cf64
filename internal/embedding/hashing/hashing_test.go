package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/embedding"
)

func TestEmbed_DeterministicAndNormalized(t *testing.T) {
	e := NewEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "What are the symptoms of a heart attack?")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "What are the symptoms of a heart attack?")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 128)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	e := NewEmbedder(0)
	v, err := e.Embed(context.Background(), "the and of")
	require.NoError(t, err)
	assert.Len(t, v, DefaultDimension)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestEmbed_RelatedTextsAreCloser(t *testing.T) {
	e := NewEmbedder(512)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "symptoms of heart attack")
	near, _ := e.Embed(ctx, "Heart attack symptoms include chest pain")
	far, _ := e.Embed(ctx, "How do I cook pasta at home")

	assert.Greater(t, embedding.Cosine(q, near), embedding.Cosine(q, far))
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	e := NewEmbedder(64)
	ctx := context.Background()
	texts := []string{"diabetes", "pasta", "stroke"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, text := range texts {
		single, _ := e.Embed(ctx, text)
		assert.Equal(t, single, batch[i])
	}
}
