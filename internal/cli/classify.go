package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"medrag/internal/classifier"
	"medrag/internal/domain"
)

var (
	classifyPrevious []string
	classifyJSON     bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify [question]",
	Short: "Show how a question would be routed",
	Long: `Classifies a question as medical or general and prints the rule that
decided it with the similarity scores behind it. Earlier questions of the
conversation can be given with --previous, oldest first.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringArrayVar(&classifyPrevious, "previous", nil, "earlier question in the conversation (repeatable)")
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "output the decision as JSON")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := invocationContext(cmd)
	emb, err := buildEmbedder(appCfg)
	if err != nil {
		return err
	}
	cls, err := buildClassifier(ctx, appCfg, emb, appLogger)
	if err != nil {
		return err
	}
	history := make([]domain.ConversationTurn, 0, len(classifyPrevious))
	for _, q := range classifyPrevious {
		history = append(history, domain.ConversationTurn{Question: q})
	}
	d, err := cls.Classify(ctx, args[0], history)
	if err != nil {
		return fmt.Errorf("classify failed: %w", err)
	}

	if classifyJSON {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	printDecision(cmd, d)
	return nil
}

func printDecision(cmd *cobra.Command, d classifier.Decision) {
	out := cmd.OutOrStdout()
	label := color.CyanString("general")
	if d.Medical {
		label = color.GreenString("medical")
	}
	fmt.Fprintf(out, "%s (rule %s)\n", label, color.YellowString(d.Rule))
	fmt.Fprintf(out, "  base score:     %.3f\n", d.Scores.Base)
	fmt.Fprintf(out, "  nearest:        %q (%.3f)\n", d.Scores.Nearest.Text, d.Scores.NearestSimilarity)
	fmt.Fprintf(out, "  medical mean:   %.3f\n", d.Scores.MedicalMean)
	fmt.Fprintf(out, "  general mean:   %.3f\n", d.Scores.NonMedicalMean)
	if p := d.Previous; p != nil {
		fmt.Fprintf(out, "  previous:       %q similarity %.3f, score %.3f\n", p.Question, p.Similarity, p.Base)
		if p.Combined != nil {
			fmt.Fprintf(out, "  combined score: %.3f\n", *p.Combined)
		}
	}
}
