// Package commands implements the bookkeeping CLI.
package commands

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/config"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/logger"
)

// Version is set at build time.
var Version = "dev"

type globalFlags struct {
	logLevel string
	pretty   bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:     "bookkeeping",
		Short:   "Bank statement ingestion for bookkeeping",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (defaults to LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&flags.pretty, "pretty", false, "human-readable logs on stderr")

	rootCmd.AddCommand(newServeCommand(&flags))
	rootCmd.AddCommand(newIngestCommand(&flags))
	rootCmd.AddCommand(newWatchCommand(&flags))
	rootCmd.AddCommand(newAccountsCommand(&flags))

	return rootCmd
}

// setup loads configuration and attaches a logger to ctx.
func setup(ctx context.Context, flags *globalFlags) (context.Context, config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return ctx, config.Config{}, zerolog.Nop(), err
	}
	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	log := logger.New(level, flags.pretty || cfg.IsDevelopment())
	return logger.WithContext(ctx, log), cfg, log, nil
}
