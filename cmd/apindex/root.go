package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dgallion1/apindex/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "apindex",
	Short: "Segment TEI volumes into page and section search records",
	Long: `apindex reads encoded parliamentary volumes (a manifest, its TEI text and
its content metadata) and turns them into page and section records for a
search index.

Records can be posted to a Solr-style index, written to a SQL store, or
dumped as JSON lines.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.apindex/config.yaml)",
	)

	rootCmd.AddCommand(indexCmd, serveCmd, versionCmd)
}

// loadConfig reads and validates the configuration. apply runs before
// validation so flags can override file and environment values.
func loadConfig(apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if apply != nil {
		apply(&cfg)
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, cfg config.Config, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
