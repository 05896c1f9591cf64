package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"medrag/internal/classifier"
	"medrag/internal/config"
	"medrag/internal/conversation"
	"medrag/internal/domain"
	"medrag/internal/embedding/hashing"
	"medrag/internal/embedding/openai"
	"medrag/internal/generation"
	"medrag/internal/literature/pubmed"
	"medrag/internal/llm/ollama"
	"medrag/internal/relevance"
	"medrag/internal/retrieval"
	"medrag/internal/service"
	"medrag/internal/summarizer"
	"medrag/internal/translate"
	"medrag/internal/vectorstore"
	"medrag/internal/vectorstore/memory"
	"medrag/internal/vectorstore/qdrant"
	"medrag/internal/vectorstore/sqlite"
)

const pingTimeout = 5 * time.Second

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		dim := 0
		if cfg.Embedder.Hashing != nil {
			dim = cfg.Embedder.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		oc := cfg.Embedder.OpenAI
		return openai.NewClient(openai.Config{
			BaseURL:        oc.BaseURL,
			APIKeyEnv:      oc.APIKeyEnv,
			Model:          oc.Model,
			Timeout:        config.Secs(oc.TimeoutSecs),
			Parallelism:    oc.Parallelism,
			AllowAnonymous: oc.AllowAnonymous,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

// embedderDimension asks the embedder for one vector when it cannot report
// its dimension up front.
func embedderDimension(ctx context.Context, emb domain.Embedder) (int, error) {
	if d := emb.Dimension(); d > 0 {
		return d, nil
	}
	v, err := emb.Embed(ctx, "dimension check")
	if err != nil {
		return 0, fmt.Errorf("probing embedder dimension: %w", err)
	}
	return len(v), nil
}

func openStore(ctx context.Context, cfg *config.AppConfig, emb domain.Embedder, logger *slog.Logger) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite", "":
		if cfg.VectorStore.SQLite == nil {
			return nil, errors.New("sqlite config missing")
		}
		return sqlite.Open(ctx, sqlite.Options{
			Path:      cfg.VectorStore.SQLite.Path,
			Embedder:  emb.Name(),
			Dimension: emb.Dimension(),
			Logger:    logger,
		})
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		dim, err := embedderDimension(ctx, emb)
		if err != nil {
			return nil, err
		}
		qc := cfg.VectorStore.Qdrant
		st := qdrant.NewStorage(qdrant.Config{
			URL:        qc.URL,
			APIKey:     qc.APIKey,
			Collection: qc.Collection,
			Dimension:  dim,
			Timeout:    config.Secs(qc.TimeoutSecs),
		})
		if err := st.Init(ctx); err != nil {
			return nil, fmt.Errorf("qdrant init: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildLiterature(cfg *config.AppConfig, logger *slog.Logger) domain.LiteratureSource {
	if cfg.Literature.Type != "pubmed" || cfg.Literature.PubMed == nil {
		return nil
	}
	pc := cfg.Literature.PubMed
	return pubmed.NewClient(pubmed.Config{
		BaseURL:           pc.BaseURL,
		APIKeyEnv:         pc.APIKeyEnv,
		Timeout:           config.Secs(pc.TimeoutSecs),
		RequestsPerSecond: pc.RequestsPerSecond,
		Logger:            logger,
	})
}

func buildBackend(b config.BackendConfig) *ollama.Client {
	return ollama.NewClient(ollama.Config{
		BaseURL: b.BaseURL,
		Models:  b.Models,
		Exclude: b.Exclude,
		Timeout: config.Secs(b.TimeoutSecs),
		Raw:     b.Raw,
	})
}

// buildRunner creates the generation runner. A backend that does not answer
// a ping is left unset so its jobs fail with domain.ErrModelUnavailable.
func buildRunner(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) *generation.Runner {
	sum := summarizer.NewFrequency()
	maxChars := cfg.Generation.MaxDocumentChars
	r := &generation.Runner{
		Prompts: generation.Prompts{
			HistoryTurns: cfg.Generation.HistoryTurns,
			Condense:     func(s string) string { return sum.Condense(s, maxChars) },
		},
		Logger: logger.With("component", "runner"),
	}
	if c := buildBackend(cfg.Generation.Reasoner); pingBackend(ctx, "reasoner", c, logger) {
		r.Reasoner = c
	}
	if c := buildBackend(cfg.Generation.General); pingBackend(ctx, "general", c, logger) {
		r.General = c
	}
	return r
}

func pingBackend(ctx context.Context, name string, c *ollama.Client, logger *slog.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		logger.Warn("generation backend unavailable", "backend", name, "err", err)
		return false
	}
	return true
}

func buildClassifier(ctx context.Context, cfg *config.AppConfig, emb domain.Embedder, logger *slog.Logger) (*classifier.Classifier, error) {
	return classifier.New(ctx, emb, classifier.DefaultExemplars(), classifier.Options{K: cfg.Classifier.K, Logger: logger})
}

// buildSupervisors returns the grounded and general supervisors. With the
// process worker each job runs in a child "medrag worker" process.
func buildSupervisors(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (grounded, general *generation.Supervisor, err error) {
	timeout := config.Secs(cfg.Generation.TimeoutSecs)
	var worker generation.Worker
	switch cfg.Generation.Worker {
	case "process":
		exe, err := os.Executable()
		if err != nil {
			return nil, nil, fmt.Errorf("locating executable: %w", err)
		}
		args := []string{"worker"}
		if cfgPath != "" {
			args = append(args, "--config", cfgPath)
		}
		worker = &generation.ProcessWorker{Path: exe, Args: args}
	default:
		worker = generation.InProcess(buildRunner(ctx, cfg, logger))
	}
	return generation.NewSupervisor("reasoner", worker, timeout, logger),
		generation.NewSupervisor("general", worker, timeout, logger), nil
}

// buildTranslator runs model translation through the general supervisor so
// it shares that backend's slot and timeout.
func buildTranslator(cfg *config.AppConfig, general *generation.Supervisor) domain.Translator {
	if cfg.Translation.Type == "model" {
		return translate.NewModel(general)
	}
	return translate.Noop{}
}

// components holds everything a question-answering command needs.
type components struct {
	store     vectorstore.Storage
	assistant *service.Assistant
}

func (c *components) Close() error { return c.store.Close() }

func buildComponents(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*components, error) {
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg, emb, logger)
	if err != nil {
		return nil, err
	}
	cls, err := buildClassifier(ctx, cfg, emb, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	grounded, general, err := buildSupervisors(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	pipeline := retrieval.New(retrieval.Config{
		Store:             store,
		Embedder:          emb,
		Filter:            relevance.NewFilter(emb),
		Source:            buildLiterature(cfg, logger),
		LiteratureTimeout: config.Secs(cfg.Retrieval.LiteratureTimeoutSecs),
		Logger:            logger,
	})
	asst := service.New(service.Config{
		Classifier:       cls,
		Retriever:        pipeline,
		Grounded:         grounded,
		General:          general,
		History:          conversation.NewStore(cfg.Conversation.MaxTurns),
		Translator:       buildTranslator(cfg, general),
		QuestionLanguage: cfg.Translation.QuestionLanguage,
		AnswerLanguage:   cfg.Translation.AnswerLanguage,
		Retrieval: retrieval.Options{
			K:             cfg.Retrieval.NumResults,
			MaxCandidates: cfg.Retrieval.MaxCandidates,
			Threshold:     cfg.Retrieval.Threshold,
		},
		Logger: logger,
	})
	return &components{store: store, assistant: asst}, nil
}
