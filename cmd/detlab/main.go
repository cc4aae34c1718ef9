// Package main is the CLI entry point for detlab.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/detlab-project/detlab/internal/analysis"
	"github.com/detlab-project/detlab/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "detlab",
		Short: "Test, benchmark and validate security detections",
		Long: `detlab loads detection specifications from a working directory, runs
their declared unit tests against recorded events, benchmarks matcher
throughput over sample logs, and lints the working set for structural
problems. One binary, no services required.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "detlab.toml", "path to config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newBenchCmd())
	rootCmd.AddCommand(newValidateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration named by the persistent --config flag and
// builds the process logger from its [logging] section.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}
	return cfg, newLogger(cfg, verbose), nil
}

func newLogger(cfg *config.Config, verbose bool) zerolog.Logger {
	var log zerolog.Logger
	if cfg.Logging.Format == "json" {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	return log.Level(level)
}

// loadSchemaSet reads log-type schemas from the configured directory. A
// missing directory yields an empty set; a malformed schema file is an error.
func loadSchemaSet(cfg *config.Config) (analysis.SchemaSet, error) {
	if cfg.Paths.Schemas == "" {
		return analysis.SchemaSet{}, nil
	}
	if _, err := os.Stat(cfg.Paths.Schemas); os.IsNotExist(err) {
		return analysis.SchemaSet{}, nil
	}
	schemas, err := analysis.LoadSchemas(os.DirFS(cfg.Paths.Schemas))
	if err != nil {
		return nil, fmt.Errorf("schemas: %w", err)
	}
	return schemas, nil
}
