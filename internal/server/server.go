// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"medrag/internal/domain"
	"medrag/internal/retrieval"
	"medrag/internal/service"
)

// Assistant is the subset of service.Assistant the HTTP layer needs.
type Assistant interface {
	Ask(ctx context.Context, user, question string, numResults int) (service.Answer, error)
	Search(ctx context.Context, question string, numResults int) (retrieval.Result, error)
}

type Server struct {
	assistant Assistant
	logger    *slog.Logger
	mux       *http.ServeMux
}

func New(assistant Assistant, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{assistant: assistant, logger: logger.With("component", "server"), mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /generate", s.handleGenerate)
	s.mux.HandleFunc("POST /search", s.handleSearch)
	s.mux.HandleFunc("GET /{$}", s.handleInfo)
	return s
}

type generateRequest struct {
	Question   string `json:"question"`
	NumResults int    `json:"num_results"`
	User       string `json:"user,omitempty"`
}

// DocumentRef identifies a document in responses.
type DocumentRef struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

type generateResponse struct {
	Answer          string        `json:"answer"`
	Medical         bool          `json:"medical"`
	Documents       []DocumentRef `json:"documents"`
	ServedFromIndex bool          `json:"served_from_index"`
	IndexUpdated    bool          `json:"index_updated"`
}

type searchResponse struct {
	Documents       []DocumentRef `json:"documents"`
	ServedFromIndex bool          `json:"served_from_index"`
	IndexUpdated    bool          `json:"index_updated"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ServeHTTP tags every request with an ID and dispatches it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)
	start := time.Now()
	s.mux.ServeHTTP(w, r.WithContext(service.WithRequestID(r.Context(), id)))
	s.logger.Debug("request served", "method", r.Method, "path", r.URL.Path, "request_id", id, "elapsed", time.Since(start))
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "medrag",
		"endpoints": []string{"POST /generate", "POST /search"},
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, &req) {
		return
	}
	ans, err := s.assistant.Ask(r.Context(), req.User, req.Question, req.NumResults)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Answer:          ans.Text,
		Medical:         ans.Medical,
		Documents:       refs(ans.Documents),
		ServedFromIndex: ans.ServedFromIndex,
		IndexUpdated:    ans.IndexUpdated,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.assistant.Search(r.Context(), req.Question, req.NumResults)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Documents:       refs(res.Documents),
		ServedFromIndex: res.ServedFromIndex,
		IndexUpdated:    res.IndexUpdated,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// fail maps errors to responses. Internal details stay in the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	id, _ := service.RequestID(r.Context())
	if errors.Is(err, domain.ErrEmptyQuestion) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question must not be empty", RequestID: id})
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "request_id", id, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", RequestID: id})
}

func refs(docs []domain.Document) []DocumentRef {
	out := make([]DocumentRef, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentRef{ID: d.ID, Title: d.Title, Similarity: d.Similarity})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe runs the server on addr until ctx is cancelled, then shuts
// down within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
