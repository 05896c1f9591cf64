package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/domain"
	"medrag/internal/embedding/embeddingtest"
	"medrag/internal/embedding/hashing"
)

// Two exemplars on orthogonal axes: x is medical, y is not.
func newTestClassifier(t *testing.T, vectors map[string][]float32) *Classifier {
	t.Helper()
	table := map[string][]float32{"m": {1, 0}, "n": {0, 1}}
	for k, v := range vectors {
		table[k] = v
	}
	c, err := New(context.Background(), embeddingtest.New(table), []Exemplar{
		{Text: "m", Label: Medical},
		{Text: "n", Label: NonMedical},
	}, Options{K: 2})
	require.NoError(t, err)
	return c
}

func turn(q string) []domain.ConversationTurn {
	return []domain.ConversationTurn{{Question: q, Answer: "..."}}
}

func TestScore_WeightedTopK(t *testing.T) {
	c := newTestClassifier(t, map[string][]float32{"prev": {4, 1}})
	s, _, err := c.Score(context.Background(), "prev")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, s.Base, 1e-6)
	assert.Equal(t, "m", s.Nearest.Text)
	assert.Greater(t, s.MedicalMean, s.NonMedicalMean)
}

func TestClassify_NoHistoryUsesBase(t *testing.T) {
	c := newTestClassifier(t, map[string][]float32{"q": {3, 1}})
	d, err := c.Classify(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.True(t, d.Medical)
	assert.Equal(t, "base", d.Rule)
	assert.Nil(t, d.Previous)
}

func TestClassify_ShortFollowUpInheritsMedical(t *testing.T) {
	c := newTestClassifier(t, map[string][]float32{
		"What causes migraines in adults?": {4, 1},
		"why though":                       {0.8, 1},
	})
	d, err := c.Classify(context.Background(), "why though", turn("What causes migraines in adults?"))
	require.NoError(t, err)
	assert.Less(t, d.Scores.Base, 0.5, "on its own the question leans non-medical")
	require.NotNil(t, d.Previous)
	assert.InDelta(t, 0.8, d.Previous.Base, 1e-6)
	assert.True(t, d.Medical)
	assert.Equal(t, "follow-up", d.Rule)
}

func TestClassify_ShortFollowUpInheritsNonMedical(t *testing.T) {
	c := newTestClassifier(t, map[string][]float32{
		"Who painted the famous ceiling?": {1, 4},
		"why though":                      {1, 0.8},
	})
	d, err := c.Classify(context.Background(), "why though", turn("Who painted the famous ceiling?"))
	require.NoError(t, err)
	assert.Greater(t, d.Scores.Base, 0.5)
	assert.InDelta(t, 0.2, d.Previous.Base, 1e-6)
	assert.False(t, d.Medical)
	assert.Equal(t, "follow-up", d.Rule)
}

func TestClassify_TopicShift(t *testing.T) {
	c := newTestClassifier(t, map[string][]float32{
		"prev":                 {1, 0},
		"how do I cook pasta?": {0.1, 1},
	})
	d, err := c.Classify(context.Background(), "how do I cook pasta?", turn("prev"))
	require.NoError(t, err)
	assert.False(t, d.Medical)
	assert.Equal(t, "topic-shift", d.Rule)
}

func TestClassify_NewTopic(t *testing.T) {
	c := newTestClassifier(t, map[string][]float32{
		"prev":                            {1, -0.9},
		"tell me something else entirely": {0.9, 1},
	})
	d, err := c.Classify(context.Background(), "tell me something else entirely", turn("prev"))
	require.NoError(t, err)
	assert.False(t, d.Medical)
	assert.Equal(t, "new-topic", d.Rule)
}

func TestClassify_AmbiguousUsesCombinedContext(t *testing.T) {
	prev := "What causes migraines in adults?"
	q := "and is that one also hereditary then"
	c := newTestClassifier(t, map[string][]float32{
		prev:           {4, 1},
		q:              {0.8, 1},
		prev + " " + q: {1, 0},
	})
	d, err := c.Classify(context.Background(), q, turn(prev))
	require.NoError(t, err)
	require.NotNil(t, d.Previous.Combined)
	assert.True(t, d.Medical)
	assert.Equal(t, "ambiguous-with-context", d.Rule)
}

func TestClassify_DeterministicWithDefaultExemplars(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, hashing.NewEmbedder(256), DefaultExemplars(), Options{})
	require.NoError(t, err)

	history := turn("What are the symptoms of a heart attack?")
	first, err := c.Classify(ctx, "and in women?", history)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Classify(ctx, "and in women?", history)
		require.NoError(t, err)
		assert.Equal(t, first.Medical, again.Medical)
		assert.Equal(t, first.Rule, again.Rule)
		assert.Equal(t, first.Scores, again.Scores)
	}
}

func TestNew_RequiresExemplars(t *testing.T) {
	_, err := New(context.Background(), embeddingtest.New(nil), nil, Options{})
	assert.Error(t, err)
}

func TestIsFollowUp(t *testing.T) {
	assert.True(t, IsFollowUp("What about children?"))
	assert.True(t, IsFollowUp("tell me more"))
	assert.False(t, IsFollowUp("aspirin dosage"))
}
