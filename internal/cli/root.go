// Package cli implements the reconciler command line.
//
//	reconciler serve                     # HTTP API
//	reconciler run --statement extrato.csv --contributors a=lista-a.xlsx
//	reconciler models list --owner u1
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/logging"
)

// GlobalFlags are shared by every subcommand
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "reconciler",
		Short: "Match bank statement income against church contributor lists",
		Long: `reconciler extracts transactions from bank statements and contributor lists,
matches them by amount, date and name, and keeps what a person confirmed so
the next run identifies the same payer on its own.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "config.yaml", "Path to the configuration file")
	root.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newServeCommand(flags),
		newRunCommand(flags),
		newModelsCommand(flags),
	)
	return root
}

// load reads the config file, falling back to the environment, and
// validates it.
func (f *GlobalFlags) load() (*config.Config, *slog.Logger, error) {
	cfg := config.LoadOrEnv_WithPath(f.ConfigPath)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	loggingCfg := cfg.Observability.Logging
	if f.Verbose {
		loggingCfg.Level = "debug"
	}
	return cfg, logging.NewLogger(loggingCfg), nil
}
