package cli

import (
	"github.com/spf13/cobra"

	"medrag/internal/config"
	"medrag/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Starts the HTTP API:
  POST /generate  {"question", "num_results", "user"} -> answer and documents
  POST /search    {"question", "num_results"}         -> documents only
  GET  /          service info`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	asst, closeFn, err := openAssistant(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	addr := appCfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(asst, appLogger)
	return srv.ListenAndServe(ctx, addr, config.Secs(appCfg.Server.ReadTimeoutSecs), config.Secs(appCfg.Server.ShutdownTimeoutSecs))
}
