package generation

import (
	"context"
	"fmt"
	"log/slog"

	"medrag/internal/domain"
)

// Kind selects the generation path.
type Kind string

const (
	Grounded Kind = "grounded"
	General  Kind = "general"
	// Completion runs Prompt verbatim on the general backend.
	Completion Kind = "completion"
)

// Job is a single generation request. It is JSON-encodable so it can be
// handed to a worker process.
type Job struct {
	Kind      Kind                      `json:"kind"`
	Question  string                    `json:"question"`
	Documents []domain.Document         `json:"documents,omitempty"`
	History   []domain.ConversationTurn `json:"history,omitempty"`

	Prompt  string                  `json:"prompt,omitempty"`
	Options *domain.GenerateOptions `json:"options,omitempty"`
}

var (
	groundedOptions = domain.GenerateOptions{MaxTokens: 250, Temperature: 0.7, TopK: 40, TopP: 0.9, RepeatPenalty: 1.2}
	retryOptions    = domain.GenerateOptions{MaxTokens: 500, Temperature: 0.7, TopK: 40, TopP: 0.9, RepeatPenalty: 1.2}
	generalOptions  = domain.GenerateOptions{MaxTokens: 400, Temperature: 0.7, TopP: 0.9, RepeatPenalty: 1.1, Stop: []string{"END"}}
)

// Runner performs the model calls for a Job. It runs inside a worker.
type Runner struct {
	Reasoner domain.Completer
	General  domain.Completer
	Prompts  Prompts
	Logger   *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run executes job and returns the answer text.
func (r *Runner) Run(ctx context.Context, job Job) (string, error) {
	switch job.Kind {
	case Grounded:
		return r.grounded(ctx, job)
	case General:
		return r.general(ctx, job)
	case Completion:
		return r.completion(ctx, job)
	default:
		return "", fmt.Errorf("unknown generation kind %q", job.Kind)
	}
}

func (r *Runner) grounded(ctx context.Context, job Job) (string, error) {
	if r.Reasoner == nil {
		return "", fmt.Errorf("grounded generation: %w", domain.ErrModelUnavailable)
	}
	prompt := r.Prompts.Grounded(job.Question, job.Documents, job.History)
	r.logger().Debug("grounded prompt", "model", r.Reasoner.Name(), "prompt", prompt)

	raw, err := r.Reasoner.Complete(ctx, prompt, groundedOptions)
	if err != nil {
		return "", fmt.Errorf("grounded generation: %w", err)
	}
	if answer, ok := Accept(raw); ok {
		return answer, nil
	}

	r.logger().Warn("answer too short or malformed, regenerating without context", "raw", raw)
	raw, err = r.Reasoner.Complete(ctx, r.Prompts.Fallback(job.Question), retryOptions)
	if err != nil {
		return "", fmt.Errorf("fallback generation: %w", err)
	}
	return AcceptRetry(raw), nil
}

func (r *Runner) general(ctx context.Context, job Job) (string, error) {
	if r.General == nil {
		return "", fmt.Errorf("general generation: %w", domain.ErrModelUnavailable)
	}
	raw, err := r.General.Complete(ctx, r.Prompts.General(job.Question, job.History), generalOptions)
	if err != nil {
		return "", fmt.Errorf("general generation: %w", err)
	}
	return StripControlTokens(raw), nil
}

func (r *Runner) completion(ctx context.Context, job Job) (string, error) {
	if r.General == nil {
		return "", fmt.Errorf("completion: %w", domain.ErrModelUnavailable)
	}
	opts := generalOptions
	if job.Options != nil {
		opts = *job.Options
	}
	raw, err := r.General.Complete(ctx, job.Prompt, opts)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return StripControlTokens(raw), nil
}
