package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"medrag/internal/service"
)

var (
	askResults int
	askUser    string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askResults, "num-results", "n", 0, "documents to ground the answer on (default retrieval.num_results)")
	askCmd.Flags().StringVar(&askUser, "user", service.DefaultUser, "conversation owner")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := invocationContext(cmd)
	asst, closeFn, err := openAssistant(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	ans, err := asst.Ask(ctx, askUser, args[0], askResults)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	out := cmd.OutOrStdout()
	label := color.New(color.FgCyan, color.Bold).Sprint("general")
	if ans.Medical {
		label = color.New(color.FgGreen, color.Bold).Sprint("medical")
	}
	fmt.Fprintf(out, "[%s] %s\n", label, ans.Text)
	if len(ans.Documents) == 0 {
		return nil
	}
	dim := color.New(color.Faint)
	fmt.Fprintln(out)
	fmt.Fprintln(out, color.New(color.Bold).Sprint("Sources:"))
	for i, d := range ans.Documents {
		fmt.Fprintf(out, "  [%d] %s %s\n", i+1, d.Title, dim.Sprintf("(%.2f)", d.Similarity))
	}
	if ans.IndexUpdated {
		fmt.Fprintln(out, dim.Sprint("  index updated from PubMed"))
	}
	return nil
}
