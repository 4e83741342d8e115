package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tgsentinel",
	Short: "Single-tenant chat monitoring, scoring, and digest delivery",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOr("TGSENTINEL_CONFIG", "config/tgsentinel.yml"), "path to the YAML config document")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogging()
	}
}

// setupLogging installs the process-wide slog handler, level controlled by
// LOG_LEVEL. The config document's log_level is loaded into Config.LogLevel
// but is not applied to this handler.
func setupLogging() {
	level := slog.LevelInfo
	switch envOr("LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
