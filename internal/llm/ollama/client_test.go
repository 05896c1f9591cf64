package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/domain"
)

func TestSelectModel(t *testing.T) {
	installed := []string{"falcon:7b", "mistral:7b-instruct", "qwen2.5:7b"}

	m, ok := SelectModel(installed, []string{"qwen2.5", "mistral"}, nil)
	assert.True(t, ok)
	assert.Equal(t, "qwen2.5:7b", m)

	m, ok = SelectModel(installed, nil, []string{"falcon"})
	assert.True(t, ok)
	assert.Equal(t, "mistral:7b-instruct", m)

	_, ok = SelectModel(installed, []string{"orca"}, nil)
	assert.False(t, ok)

	_, ok = SelectModel([]string{"falcon"}, nil, []string{"FALCON"})
	assert.False(t, ok)
}

func newServer(t *testing.T, gen http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var tagCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		tagCalls.Add(1)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"name":"mistral:7b"}]}`))
	})
	mux.HandleFunc("/api/generate", gen)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tagCalls
}

func TestComplete(t *testing.T) {
	var got generateRequest
	srv, tags := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"mistral:7b","response":"Paris.","done":true}`))
	})
	c := NewClient(Config{BaseURL: srv.URL, Models: []string{"mistral"}})

	for i := 0; i < 2; i++ {
		out, err := c.Complete(context.Background(), "Capital of France?", domain.GenerateOptions{MaxTokens: 400, Temperature: 0.7, Stop: []string{"END"}})
		require.NoError(t, err)
		assert.Equal(t, "Paris.", out)
	}
	assert.Equal(t, int32(1), tags.Load(), "model is resolved once")
	assert.Equal(t, "mistral:7b", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 400, got.Options.NumPredict)
	assert.Equal(t, []string{"END"}, got.Options.Stop)
	assert.Equal(t, "mistral:7b", c.Name())
}

func TestPing_NoAcceptableModel(t *testing.T) {
	srv, _ := newServer(t, nil)
	c := NewClient(Config{BaseURL: srv.URL, Models: []string{"qwen2.5"}})
	assert.ErrorIs(t, c.Ping(context.Background()), domain.ErrModelUnavailable)
}

func TestPing_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewClient(Config{BaseURL: url})
	assert.ErrorIs(t, c.Ping(context.Background()), domain.ErrModelUnavailable)
}

func TestComplete_ServerError(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "out of memory", http.StatusInternalServerError)
	})
	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), "x", domain.GenerateOptions{})
	assert.ErrorContains(t, err, "out of memory")
	assert.NotErrorIs(t, err, domain.ErrModelUnavailable)
}
