package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"medrag/internal/chunker"
	"medrag/internal/indexer"
	"medrag/internal/summarizer"
	"medrag/internal/vectorstore/sqlite"
)

var indexSummary int

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and seed the local vector index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index size and location",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexBootstrapCmd = &cobra.Command{
	Use:   "bootstrap [files...]",
	Short: "Add documents from .txt files and JSON document lists",
	Long: `Reads .txt files (split into sentence chunks) and .json files holding an
array of {"id", "title", "text"} documents, and appends the ones the index
does not hold yet. Arguments may be glob patterns.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndexBootstrap,
}

func init() {
	indexBootstrapCmd.Flags().IntVar(&indexSummary, "summary", 0, "print a summary of the added text with this many sentences")
	indexCmd.AddCommand(indexStatsCmd, indexBootstrapCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	emb, err := buildEmbedder(appCfg)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, appCfg, emb, appLogger)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Store:     %s\n", appCfg.VectorStore.Type)
	if s, ok := store.(*sqlite.Storage); ok {
		fmt.Fprintf(out, "Path:      %s\n", s.Path())
	}
	fmt.Fprintf(out, "Embedder:  %s (%d dims)\n", emb.Name(), emb.Dimension())
	fmt.Fprintf(out, "Documents: %d\n", n)
	return nil
}

func runIndexBootstrap(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	emb, err := buildEmbedder(appCfg)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, appCfg, emb, appLogger)
	if err != nil {
		return err
	}
	defer store.Close()

	ix := &indexer.Indexer{
		Chunker:  chunker.NewSentenceChunker(appCfg.Chunker.SentencesPerChunk, appCfg.Chunker.OverlapSentences),
		Embedder: emb,
		Store:    store,
		Logger:   appLogger,
	}
	docs, err := ix.LoadFiles(args)
	if err != nil {
		return err
	}
	rep, err := ix.Ingest(ctx, docs)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	fmt.Fprintf(out, "Read %d documents: %d added, %d skipped\n", rep.Seen, rep.Added, rep.Skipped)
	if indexSummary > 0 {
		var text strings.Builder
		for _, d := range docs {
			text.WriteString(d.Text)
			text.WriteString("\n")
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, summarizer.NewFrequency().Summarize(text.String(), indexSummary))
	}
	return nil
}
