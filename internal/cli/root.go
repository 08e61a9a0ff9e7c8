// Package cli provides the command-line interface for icaflow.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/calidata/icaflow/internal/cli/commands"
	"github.com/calidata/icaflow/internal/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "icaflow",
		Short: "icaflow - Air Quality ETL",
		Long: `icaflow ingests raw air quality extracts, normalizes and deduplicates
the readings, fills short gaps, computes the hourly ICA index per
station and loads everything into a dimensional store.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			cmd.SetContext(commands.WithRuntime(cmd.Context(), *cfg, logger))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Air Quality ETL
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./icaflow.yaml)")
	rootCmd.PersistentFlags().String("store-type", "", "Store backend (sqlite|postgres)")
	rootCmd.PersistentFlags().String("store-path", "", "SQLite database path")
	rootCmd.PersistentFlags().String("store-host", "", "PostgreSQL host")
	rootCmd.PersistentFlags().Int("store-port", 0, "PostgreSQL port")
	rootCmd.PersistentFlags().String("database", "", "PostgreSQL database name")
	rootCmd.PersistentFlags().String("lock-mode", "", "Run lock mode (advisory|none)")
	rootCmd.PersistentFlags().Int("max-gap-hours", 0, "Widest gap in hours the imputer fills")
	rootCmd.PersistentFlags().String("source", "", "Source label and column mapping for the run")
	rootCmd.PersistentFlags().String("breakpoints", "", "YAML file overriding the ICA breakpoint tables")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewSeedCommand())
	rootCmd.AddCommand(commands.NewLogsCommand())
	rootCmd.AddCommand(commands.NewStationsCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
