package generation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"medrag/internal/domain"
)

func TestGroundedPrompt(t *testing.T) {
	var docs []domain.Document
	for i := 0; i < 7; i++ {
		docs = append(docs, domain.Document{ID: fmt.Sprint(i), Title: fmt.Sprintf("Title %d", i), Text: fmt.Sprintf("Body %d", i)})
	}
	docs[1].Title = ""
	var history []domain.ConversationTurn
	for i := 0; i < 5; i++ {
		history = append(history, domain.ConversationTurn{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)})
	}

	p := Prompts{Condense: strings.ToUpper}.Grounded("  What is it? ", docs, history)

	assert.True(t, strings.HasPrefix(p, "<|im_start|>system\n"))
	assert.True(t, strings.HasSuffix(p, "<|im_start|>assistant\n"))
	assert.Contains(t, p, "User question:\nWhat is it?\n")
	assert.Contains(t, p, "Document: Title 0\nContent: BODY 0")
	assert.Contains(t, p, "Content: BODY 1")
	assert.Contains(t, p, "Title 4")
	assert.NotContains(t, p, "Title 5")
	assert.NotContains(t, p, "Question: q1\n")
	assert.Contains(t, p, "Question: q2\nAnswer: a2\nQuestion: q3")
	assert.Contains(t, p, "Question: q4\nAnswer: a4")
}

func TestGroundedPrompt_NoHistorySection(t *testing.T) {
	p := Prompts{}.Grounded("q", []domain.Document{{Title: "t", Text: "x"}}, nil)
	assert.NotContains(t, p, "Conversation history")
}

func TestGeneralPrompt(t *testing.T) {
	p := Prompts{HistoryTurns: 1}.General("How do I cook pasta?", []domain.ConversationTurn{
		{Question: "old", Answer: "old answer"},
		{Question: "Capital of France?", Answer: "Paris."},
	})
	assert.True(t, strings.HasPrefix(p, "[INST] "))
	assert.True(t, strings.HasSuffix(p, "[/INST]"))
	assert.Contains(t, p, "Question: How do I cook pasta?")
	assert.Contains(t, p, "Previous question: Capital of France?\nPrevious answer: Paris.")
	assert.NotContains(t, p, "old")
}

func TestFallbackPrompt(t *testing.T) {
	p := Prompts{}.Fallback(" Is aspirin safe? ")
	assert.Contains(t, p, "### User question:\nIs aspirin safe?\n")
	assert.NotContains(t, p, "Document:")
}
