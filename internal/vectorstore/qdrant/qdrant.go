package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"medrag/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// Point IDs are index positions and the payload carries the document, so the
// collection holds the index, the mapping and the table in one place.
// It uses Euclid distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	writeMu    sync.Mutex
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection when it does not exist yet.
func (s *Storage) Init(ctx context.Context) error {
	if s.dimension <= 0 {
		return errors.New("invalid dimension")
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Euclid",
		},
	}
	_, err = s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	return err
}

func (s *Storage) Append(ctx context.Context, docs []domain.Document, vectors [][]float32) ([]int, error) {
	if len(docs) != len(vectors) {
		return nil, errors.New("documents and vectors length mismatch")
	}
	if len(docs) == 0 {
		return nil, nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	points := make([]map[string]any, len(docs))
	positions := make([]int, len(docs))
	for i, d := range docs {
		if len(vectors[i]) != s.dimension {
			return nil, domain.ErrDimensionMismatch
		}
		positions[i] = start + i
		points[i] = map[string]any{
			"id":     positions[i],
			"vector": vectors[i],
			"payload": map[string]any{
				"doc_id": d.ID,
				"title":  d.Title,
				"text":   d.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return nil, err
	}
	return positions, nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": false,
	}
	var resp struct {
		Result []struct {
			ID    int     `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Neighbor, 0, len(resp.Result))
	for _, r := range resp.Result {
		// Euclid scores are plain distances
		out = append(out, domain.Neighbor{Position: r.ID, Distance: r.Score * r.Score})
	}
	return out, nil
}

func (s *Storage) Lookup(ctx context.Context, positions []int) ([]domain.Document, error) {
	if len(positions) == 0 {
		return nil, nil
	}
	req := map[string]any{"ids": positions, "with_payload": true, "with_vector": false}
	var resp struct {
		Result []struct {
			ID      int            `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points"), req, &resp); err != nil {
		return nil, err
	}
	byPos := make(map[int]domain.Document, len(resp.Result))
	for _, r := range resp.Result {
		d := payloadDocument(r.Payload)
		if d.ID == "" || d.Text == "" {
			continue
		}
		byPos[r.ID] = d
	}
	out := make([]domain.Document, 0, len(positions))
	for _, p := range positions {
		if d, ok := byPos[p]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Storage) Known(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return known, nil
	}
	req := map[string]any{
		"filter": map[string]any{
			"must": []any{map[string]any{"key": "doc_id", "match": map[string]any{"any": ids}}},
		},
		"limit":        len(ids),
		"with_payload": []string{"doc_id"},
	}
	var resp struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp); err != nil {
		return nil, err
	}
	for _, p := range resp.Result.Points {
		if id, ok := p.Payload["doc_id"].(string); ok {
			known[id] = true
		}
	}
	return known, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func payloadDocument(p map[string]any) domain.Document {
	var d domain.Document
	if v, ok := p["doc_id"].(string); ok {
		d.ID = v
	}
	if v, ok := p["title"].(string); ok {
		d.Title = v
	}
	if v, ok := p["text"].(string); ok {
		d.Text = v
	}
	return d
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}
