package summarizer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

const passage = "Insulin regulates blood glucose. The weather was nice. " +
	"Low insulin raises blood glucose and causes diabetes. Cats sleep a lot. " +
	"Diabetes management relies on insulin and glucose monitoring"

func TestSentences(t *testing.T) {
	got := Sentences(passage)
	assert.Len(t, got, 5)
	assert.Equal(t, "Insulin regulates blood glucose.", got[0])
	assert.Equal(t, "Diabetes management relies on insulin and glucose monitoring", got[4])
	assert.Nil(t, Sentences("   "))
}

func TestSummarize_KeepsTopSentencesInOrder(t *testing.T) {
	got := NewFrequency().Summarize(passage, 2)
	assert.NotContains(t, got, "weather")
	assert.NotContains(t, got, "Cats")
	parts := Sentences(got)
	assert.Len(t, parts, 2)
	assert.Less(t, strings.Index(passage, parts[0]), strings.Index(passage, parts[1]))
}

func TestCondense(t *testing.T) {
	s := NewFrequency()
	assert.Equal(t, "short.", s.Condense("  short.  ", 100))

	got := s.Condense(passage, 120)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 120)
	assert.Contains(t, got, "insulin")

	cut := s.Condense(strings.Repeat("x", 50), 10)
	assert.Equal(t, strings.Repeat("x", 10), cut)
}
