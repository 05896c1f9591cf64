package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Retrieve documents without generating an answer",
	Long: `Runs the retrieval pipeline only: the local index is searched first and
PubMed is queried when too few relevant documents are stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of documents")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx := invocationContext(cmd)
	asst, closeFn, err := openAssistant(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := asst.Search(ctx, args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(res.Documents) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintln(out, "Results:")
	fmt.Fprintln(out)
	for i, d := range res.Documents {
		fmt.Fprintf(out, "  [%d] %s (%.2f)\n", i+1, d.Title, d.Similarity)
		fmt.Fprintf(out, "      ID: %s\n", d.ID)
		fmt.Fprintln(out)
	}
	source := "PubMed"
	if res.ServedFromIndex {
		source = "local index"
	}
	fmt.Fprintf(out, "Served from %s, index updated: %v\n", source, res.IndexUpdated)
	return nil
}
