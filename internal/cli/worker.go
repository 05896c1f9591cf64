package cli

import (
	"github.com/spf13/cobra"

	"medrag/internal/generation"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run one generation job read from stdin",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		runner := buildRunner(ctx, appCfg, appLogger)
		return generation.ServeWorker(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), generation.InProcess(runner))
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
