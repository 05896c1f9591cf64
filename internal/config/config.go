package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	ReadTimeoutSecs     int    `yaml:"read_timeout_secs"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	Parallelism    int    `yaml:"parallelism"`
	AllowAnonymous bool   `yaml:"allow_anonymous"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// ChunkerConfig configures how bootstrap documents are split into chunks.
type ChunkerConfig struct {
	SentencesPerChunk int `yaml:"sentences_per_chunk"`
	OverlapSentences  int `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// SQLiteConfig locates the durable index file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LiteratureConfig selects the external literature source.
type LiteratureConfig struct {
	Type   string        `yaml:"type"`
	PubMed *PubMedConfig `yaml:"pubmed,omitempty"`
}

// PubMedConfig configures the NCBI E-utilities client.
type PubMedConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// RetrievalConfig tunes the hybrid retrieval pipeline.
type RetrievalConfig struct {
	NumResults            int     `yaml:"num_results"`
	MaxCandidates         int     `yaml:"max_candidates"`
	Threshold             float64 `yaml:"threshold"`
	LiteratureTimeoutSecs int     `yaml:"literature_timeout_secs"`
}

// ClassifierConfig tunes the medical/general router.
type ClassifierConfig struct {
	K int `yaml:"k"`
}

// BackendConfig configures one Ollama generation backend.
type BackendConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Models      []string `yaml:"models"`
	Exclude     []string `yaml:"exclude,omitempty"`
	TimeoutSecs int      `yaml:"timeout_secs"`
	Raw         bool     `yaml:"raw"`
}

// GenerationConfig configures the generation supervisor and its backends.
type GenerationConfig struct {
	TimeoutSecs      int           `yaml:"timeout_secs"`
	Worker           string        `yaml:"worker"`
	HistoryTurns     int           `yaml:"history_turns"`
	MaxDocumentChars int           `yaml:"max_document_chars"`
	Reasoner         BackendConfig `yaml:"reasoner"`
	General          BackendConfig `yaml:"general"`
}

// ConversationConfig bounds per-user history.
type ConversationConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// TranslationConfig selects how questions and answers are translated.
type TranslationConfig struct {
	Type             string `yaml:"type"`
	QuestionLanguage string `yaml:"question_language"`
	AnswerLanguage   string `yaml:"answer_language"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Literature   LiteratureConfig   `yaml:"literature"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Generation   GenerationConfig   `yaml:"generation"`
	Conversation ConversationConfig `yaml:"conversation"`
	Translation  TranslationConfig  `yaml:"translation"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, applyEnvOverrides(cfg)
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./medrag.yaml first, then ~/.config/medrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/medrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "medrag.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, applyEnvOverrides(cfg)
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "medrag", "config.yaml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "medrag")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing"},
		VectorStore: VectorStoreConfig{Type: "sqlite"},
		Literature:  LiteratureConfig{Type: "pubmed"},
		Generation: GenerationConfig{
			Worker: "inprocess",
			Reasoner: BackendConfig{
				Models:  []string{"qwen2.5", "mistral", "orca"},
				Exclude: []string{"falcon"},
				Raw:     true,
			},
			General: BackendConfig{Models: []string{"mistral"}},
		},
		Translation: TranslationConfig{Type: "none", QuestionLanguage: "English"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8000"
	}
	if cfg.Server.ReadTimeoutSecs == 0 {
		cfg.Server.ReadTimeoutSecs = 30
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 10
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "hashing" {
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.Parallelism == 0 {
			cfg.Embedder.OpenAI.Parallelism = 4
		}
	}

	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
		cfg.Chunker.OverlapSentences = 1
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Type == "sqlite" {
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = filepath.Join(defaultDataDir(), "index.db")
		}
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "medrag"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.Literature.Type == "" {
		cfg.Literature.Type = "pubmed"
	}
	if cfg.Literature.Type == "pubmed" {
		if cfg.Literature.PubMed == nil {
			cfg.Literature.PubMed = &PubMedConfig{}
		}
		if cfg.Literature.PubMed.BaseURL == "" {
			cfg.Literature.PubMed.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
		}
		if cfg.Literature.PubMed.APIKeyEnv == "" {
			cfg.Literature.PubMed.APIKeyEnv = "NCBI_API_KEY"
		}
		if cfg.Literature.PubMed.TimeoutSecs == 0 {
			cfg.Literature.PubMed.TimeoutSecs = 10
		}
	}

	if cfg.Retrieval.NumResults == 0 {
		cfg.Retrieval.NumResults = 5
	}
	if cfg.Retrieval.MaxCandidates == 0 {
		cfg.Retrieval.MaxCandidates = 50
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = 0.5
	}
	if cfg.Retrieval.LiteratureTimeoutSecs == 0 {
		cfg.Retrieval.LiteratureTimeoutSecs = 10
	}

	if cfg.Classifier.K == 0 {
		cfg.Classifier.K = 5
	}

	g := &cfg.Generation
	if g.TimeoutSecs == 0 {
		g.TimeoutSecs = 1500
	}
	if g.Worker == "" {
		g.Worker = "inprocess"
	}
	if g.HistoryTurns == 0 {
		g.HistoryTurns = 3
	}
	if g.MaxDocumentChars == 0 {
		g.MaxDocumentChars = 1500
	}
	for _, b := range []*BackendConfig{&g.Reasoner, &g.General} {
		if b.BaseURL == "" {
			b.BaseURL = "http://localhost:11434"
		}
		if b.TimeoutSecs == 0 {
			b.TimeoutSecs = g.TimeoutSecs
		}
	}

	if cfg.Translation.Type == "" {
		cfg.Translation.Type = "none"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnvOverrides lets a few deployment-specific settings come from the environment.
func applyEnvOverrides(cfg *AppConfig) error {
	envMappings := map[string]func(string) error{
		"MEDRAG_SERVER_ADDR": func(v string) error { cfg.Server.Addr = v; return nil },
		"MEDRAG_INDEX_PATH":  func(v string) error { cfg.VectorStore.SQLite = &SQLiteConfig{Path: v}; return nil },
		"MEDRAG_OLLAMA_URL": func(v string) error {
			cfg.Generation.Reasoner.BaseURL = v
			cfg.Generation.General.BaseURL = v
			return nil
		},
		"MEDRAG_LOG_LEVEL":               func(v string) error { cfg.Logging.Level = v; return nil },
		"MEDRAG_GENERATION_TIMEOUT_SECS": func(v string) error { return parseInt(v, &cfg.Generation.TimeoutSecs) },
	}
	for envVar, setter := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			if err := setter(value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", envVar, err)
			}
		}
	}
	return nil
}

func parseInt(s string, dst *int) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// Secs converts a *_secs setting to a duration.
func Secs(n int) time.Duration { return time.Duration(n) * time.Second }
