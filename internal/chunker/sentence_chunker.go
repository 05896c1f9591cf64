// Package chunker splits long source documents into index-sized pieces.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"medrag/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	// an overlap of a whole chunk would never advance
	overlapSentences = min(max(overlapSentences, 0), sentencesPerChunk-1)
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Chunk returns one document per chunk. A document that fits in a single
// chunk keeps its ID; otherwise chunk IDs are "<id>#<n>" and titles get a
// part suffix.
func (c *SentenceChunker) Chunk(doc domain.Document) []domain.Document {
	sentences := c.sentences(doc.Text)
	if len(sentences) == 0 {
		return nil
	}
	var parts []string
	for i := 0; i < len(sentences); {
		end := min(i+c.sentencesPerChunk, len(sentences))
		parts = append(parts, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	if len(parts) == 1 {
		return []domain.Document{{ID: doc.ID, Title: doc.Title, Text: parts[0]}}
	}
	out := make([]domain.Document, len(parts))
	for n, text := range parts {
		out[n] = domain.Document{
			ID:    fmt.Sprintf("%s#%d", doc.ID, n),
			Title: fmt.Sprintf("%s (part %d/%d)", doc.Title, n+1, len(parts)),
			Text:  text,
		}
	}
	return out
}

func (c *SentenceChunker) sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	end := 0
	for _, loc := range c.splitter.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		end = loc[1]
	}
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
