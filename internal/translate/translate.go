// Package translate converts questions and answers between languages.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"medrag/internal/domain"
)

// Noop returns text unchanged.
type Noop struct{}

func (Noop) Translate(_ context.Context, text, _, _ string) (string, error) { return text, nil }

var translateOptions = domain.GenerateOptions{MaxTokens: 512, Temperature: 0.1, TopP: 0.9}

// Model translates with a general-purpose language model.
type Model struct {
	completer domain.Completer
}

func NewModel(c domain.Completer) *Model { return &Model{completer: c} }

func (m *Model) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" || (source != "" && strings.EqualFold(source, target)) {
		return text, nil
	}
	from := source
	if from == "" {
		from = "the detected language"
	}
	prompt := fmt.Sprintf("[INST] Translate the following text from %s to %s. Reply with the translation only, without notes.\n\n%s\n[/INST]", from, target, text)
	out, err := m.completer.Complete(ctx, prompt, translateOptions)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("translate: empty output")
	}
	return out, nil
}

// OrOriginal translates text and falls back to the original on failure.
func OrOriginal(ctx context.Context, t domain.Translator, text, source, target string, logger *slog.Logger) string {
	if t == nil || target == "" {
		return text
	}
	out, err := t.Translate(ctx, text, source, target)
	if err != nil {
		if logger != nil {
			logger.Warn("translation failed, using original text", "target", target, "error", err)
		}
		return text
	}
	return out
}
