package domain

import "context"

// Document is a unit of medical literature known to the system.
// Similarity is only populated on documents returned from a retrieval.
type Document struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Neighbor is a vector index hit. Smaller Distance means closer.
type Neighbor struct {
	Position int
	Distance float64
}

// ConversationTurn is one completed question/answer exchange.
type ConversationTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Embedder converts free text into a fixed-dimension vector.
// Implementations must be deterministic for a fixed model and safe for concurrent use.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LiteratureSource fetches candidate documents from an external corpus.
// Results are not guaranteed to be relevant.
type LiteratureSource interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Document, error)
}

// GenerateOptions tunes a single completion call.
type GenerateOptions struct {
	MaxTokens     int
	Temperature   float64
	TopK          int
	TopP          float64
	RepeatPenalty float64
	Stop          []string
}

// Completer is a synchronous text-in/text-out language model.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Translator translates text between languages. An empty source means auto-detect.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}
