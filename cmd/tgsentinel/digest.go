package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/digest"
	"github.com/redoracle/tgsentinel/internal/metrics"
	"github.com/redoracle/tgsentinel/internal/store/filestate"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Run the digest scheduler: discover, collect, aggregate, render, deliver",
	RunE:  runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)
}

func runDigest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfgStore, err := config.NewStore(configPath)
	if err != nil {
		return err
	}
	cfg := cfgStore.Current()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	coordStore := newCoordStore(cfg)

	schedulePath := filepath.Join(filepath.Dir(configPath), "digest_schedule.json")
	scheduleStore, err := filestate.Open(schedulePath)
	if err != nil {
		return err
	}

	chatClient, err := newChatClient()
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		shutdown, err := metrics.SetupTracing(ctx, "tgsentinel-digest")
		if err != nil {
			slog.Warn("digest: tracing setup failed, continuing without it", "error", err)
		} else {
			defer shutdown(context.Background())
		}
		if m, err = metrics.New(); err != nil {
			slog.Warn("digest: metrics setup failed, continuing without counters", "error", err)
			m = nil
		}
	}

	engine := &digest.Engine{
		Config:    cfgStore,
		Messages:  stores.Messages,
		Schedules: scheduleStore,
		Coord:     coordStore,
		Client:    chatClient,
		Metrics:   m,
	}

	return engine.Run(ctx)
}
