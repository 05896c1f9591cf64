package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"medrag/internal/service"
	"medrag/internal/tui"
)

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := invocationContext(cmd)
		asst, closeFn, err := openAssistant(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		m := tui.New(ctx, asst, chatUser, appCfg.Retrieval.NumResults)
		_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", service.DefaultUser, "conversation owner")
	rootCmd.AddCommand(chatCmd)
}
