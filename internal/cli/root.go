// Package cli implements the medrag command line.
package cli

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"medrag/internal/config"
	"medrag/internal/logging"
	"medrag/internal/server"
	"medrag/internal/service"
)

var (
	cfgPath  string
	logLevel string

	appCfg    *config.AppConfig
	appLogger *slog.Logger
)

// openAssistant builds the assistant for question-answering commands. The
// returned func releases its resources.
var openAssistant = func(ctx context.Context) (server.Assistant, func() error, error) {
	c, err := buildComponents(ctx, appCfg, appLogger)
	if err != nil {
		return nil, nil, err
	}
	return c.assistant, c.Close, nil
}

var rootCmd = &cobra.Command{
	Use:   "medrag",
	Short: "Medical question answering over PubMed with a local vector index",
	Long: `medrag answers health questions with documents retrieved from a local
vector index, falling back to PubMed and remembering what it finds.
General questions are answered directly by a general-purpose model.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./medrag.yaml or ~/.config/medrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	if cfgPath == "" {
		appCfg, _, err = config.LoadDefault()
	} else {
		appCfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return err
	}
	if logLevel != "" {
		appCfg.Logging.Level = logLevel
	}
	if err := appCfg.Validate(); err != nil {
		return err
	}
	appLogger = logging.NewWriter(cmd.ErrOrStderr(), appCfg.Logging)
	return nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// invocationContext tags a CLI invocation with a request ID for log correlation.
func invocationContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return service.WithRequestID(ctx, uuid.NewString())
}
