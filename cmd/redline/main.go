package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/internal/storage/sqlite"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	cfgPath string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "redline",
	Short: "Model-assisted document review",
	Long: `Redline reviews a text document with an AI model: it extracts issue
reports, anchors each one to an exact character range, filters and
deduplicates them, and produces annotated comments plus a summary.

Every run is recorded with full telemetry and saved locally, so results
can be listed, inspected, and exported later.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".redline/config.yaml", "path to the config file")
}

// openStore opens the run database configured for this working directory
func openStore() (*sqlite.Store, error) {
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run database %s: %w", cfg.DatabasePath, err)
	}
	return store, nil
}

// setupLogging installs the default slog logger at the configured level
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
