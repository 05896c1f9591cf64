package generation

import (
	"fmt"
	"strings"

	"medrag/internal/domain"
)

const (
	maxPromptDocuments = 5
	// DefaultHistoryTurns is how many recent turns are rendered into prompts.
	DefaultHistoryTurns = 3
)

// Prompts renders the model prompts. Condense, when set, shortens each
// document text before it is placed in the grounded prompt.
type Prompts struct {
	HistoryTurns int
	Condense     func(string) string
}

func (p Prompts) recent(history []domain.ConversationTurn) []domain.ConversationTurn {
	n := p.HistoryTurns
	if n <= 0 {
		n = DefaultHistoryTurns
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

// Grounded builds the ChatML prompt for the document-grounded path.
func (p Prompts) Grounded(question string, docs []domain.Document, history []domain.ConversationTurn) string {
	var blocks []string
	for _, d := range docs[:min(len(docs), maxPromptDocuments)] {
		title := strings.TrimSpace(d.Title)
		text := strings.TrimSpace(d.Text)
		if p.Condense != nil {
			text = p.Condense(text)
		}
		switch {
		case title != "" && text != "":
			blocks = append(blocks, fmt.Sprintf("Document: %s\nContent: %s", title, text))
		case text != "":
			blocks = append(blocks, "Content: "+text)
		}
	}

	var turns []string
	for _, t := range p.recent(history) {
		q, a := strings.TrimSpace(t.Question), strings.TrimSpace(t.Answer)
		if q != "" && a != "" {
			turns = append(turns, fmt.Sprintf("Question: %s\nAnswer: %s", q, a))
		}
	}

	var b strings.Builder
	b.WriteString("<|im_start|>system\n")
	b.WriteString("You are a medical assistant. Always answer clearly and simply, in language a patient can understand.\n")
	b.WriteString("IMPORTANT: Use the information in the clinical context to answer the question.\n")
	b.WriteString("If the context contains a complete answer, rely only on that information.\n")
	b.WriteString("<|im_end|>\n<|im_start|>user\n")
	b.WriteString("User question:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nClinical context (use this information to answer):\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	if len(turns) > 0 {
		b.WriteString("\n\nConversation history:\n")
		b.WriteString(strings.Join(turns, "\n"))
	}
	b.WriteString("\n<|im_end|>\n<|im_start|>assistant\n")
	return b.String()
}

// Fallback builds the context-free prompt used for the single regeneration.
func (p Prompts) Fallback(question string) string {
	return "### Instructions:\n" +
		"You are a medical assistant. Always answer clearly and simply, in language a patient can understand.\n" +
		"Answer using only your general medical knowledge, without referring to external documents.\n\n" +
		"### User question:\n" + strings.TrimSpace(question) + "\n\n" +
		"### Answer, simple and useful for a patient:"
}

// General builds the instruction prompt for non-medical questions.
func (p Prompts) General(question string, history []domain.ConversationTurn) string {
	var turns []string
	for _, t := range p.recent(history) {
		q, a := strings.TrimSpace(t.Question), strings.TrimSpace(t.Answer)
		if q != "" && a != "" {
			turns = append(turns, fmt.Sprintf("Previous question: %s\nPrevious answer: %s", q, a))
		}
	}
	return "[INST] Answer clearly, concisely and naturally, even if the question is not medical.\n\n" +
		"Question: " + strings.TrimSpace(question) + "\n" +
		strings.Join(turns, "\n\n") + "\n" +
		"[/INST]"
}
