// Package ollama is a generation backend speaking the Ollama HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"medrag/internal/domain"
)

const DefaultBaseURL = "http://localhost:11434"

type Config struct {
	BaseURL string
	// Models lists acceptable model names in preference order. An entry
	// matches an installed model whose name contains it. Empty means the
	// first installed model.
	Models []string
	// Exclude drops installed models whose name contains any entry.
	Exclude []string
	Timeout time.Duration
	// Raw sends prompts without the model's own chat template.
	Raw bool
}

// Client resolves its model on first use and is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client

	mu    sync.Mutex
	model string
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		// generation on CPU can be very slow; callers bound it with ctx
		cfg.Timeout = 30 * time.Minute
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Name returns the resolved model name, or the first preference before resolution.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != "" {
		return c.model
	}
	if len(c.cfg.Models) > 0 {
		return c.cfg.Models[0]
	}
	return "ollama"
}

// Ping resolves the model. It fails with domain.ErrModelUnavailable when the
// server is unreachable or has no acceptable model.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.resolve(ctx)
	return err
}

// Models returns the installed model names.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w: %v", domain.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: %w: tags status %d", domain.ErrModelUnavailable, resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: decode tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) resolve(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != "" {
		return c.model, nil
	}
	installed, err := c.Models(ctx)
	if err != nil {
		return "", err
	}
	model, ok := SelectModel(installed, c.cfg.Models, c.cfg.Exclude)
	if !ok {
		return "", fmt.Errorf("ollama: %w: none of %v installed", domain.ErrModelUnavailable, c.cfg.Models)
	}
	c.model = model
	return model, nil
}

// SelectModel picks the first installed model matching the preferences in
// order, skipping excluded names. With no preferences any non-excluded model
// qualifies.
func SelectModel(installed, preferred, exclude []string) (string, bool) {
	var candidates []string
	for _, m := range installed {
		if !containsAnyFold(m, exclude) {
			candidates = append(candidates, m)
		}
	}
	if len(preferred) == 0 {
		if len(candidates) == 0 {
			return "", false
		}
		return candidates[0], true
	}
	for _, p := range preferred {
		for _, m := range candidates {
			if strings.Contains(strings.ToLower(m), strings.ToLower(p)) {
				return m, true
			}
		}
	}
	return "", false
}

func containsAnyFold(s string, subs []string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// Complete runs a single non-streaming generation.
func (c *Client) Complete(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	model, err := c.resolve(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Raw:    c.cfg.Raw,
		Options: &options{
			Temperature:   opts.Temperature,
			TopK:          opts.TopK,
			TopP:          opts.TopP,
			RepeatPenalty: opts.RepeatPenalty,
			NumPredict:    opts.MaxTokens,
			Stop:          opts.Stop,
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("ollama generate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusNotFound {
			return "", errors.Join(domain.ErrModelUnavailable, err)
		}
		return "", err
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama generate: decode: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama generate: %s", out.Error)
	}
	return out.Response, nil
}
