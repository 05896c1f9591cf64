package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"medrag/internal/chunker"
	"medrag/internal/config"
	"medrag/internal/domain"
	"medrag/internal/embedding/hashing"
	"medrag/internal/embedding/openai"
	"medrag/internal/indexer"
	"medrag/internal/logging"
	"medrag/internal/vectorstore/sqlite"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, dbPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/medrag/config.yaml if not provided)")
	flag.StringVar(&dbPath, "db", "", "SQLite index path (overrides vector_store.sqlite.path)")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: medrag-index [--config=config.yaml] [--db=index.db] docs.json notes/*.txt ...")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.New(cfg.Logging)

	path := dbPath
	if path == "" && cfg.VectorStore.SQLite != nil {
		path = cfg.VectorStore.SQLite.Path
	}
	if path == "" {
		log.Fatalf("no index path: set --db or vector_store.sqlite.path")
	}

	ctx := context.Background()
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hashing":
		emb = hashing.NewEmbedder(cfg.Embedder.Hashing.Dimension)
	case "openai":
		oc := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:        oc.BaseURL,
			APIKeyEnv:      oc.APIKeyEnv,
			Model:          oc.Model,
			Timeout:        config.Secs(oc.TimeoutSecs),
			Parallelism:    oc.Parallelism,
			AllowAnonymous: oc.AllowAnonymous,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}
	store, err := sqlite.Open(ctx, sqlite.Options{Path: path, Embedder: emb.Name(), Dimension: emb.Dimension(), Logger: logger})
	if err != nil {
		log.Fatalf("open index: %v", err)
	}
	defer store.Close()

	ix := &indexer.Indexer{
		Chunker:  chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences),
		Embedder: emb,
		Store:    store,
		Logger:   logger,
	}
	docs, err := ix.LoadFiles(inputs)
	if err != nil {
		log.Fatalf("load failed: %v", err)
	}
	rep, err := ix.Ingest(ctx, docs)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}
	n, _ := store.Count(ctx)
	fmt.Printf("%s: %d read, %d added, %d skipped, %d total\n", path, rep.Seen, rep.Added, rep.Skipped, n)
}
