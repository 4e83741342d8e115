package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/feedback"
	"github.com/redoracle/tgsentinel/internal/lifecycle"
	"github.com/redoracle/tgsentinel/internal/metrics"
	"github.com/redoracle/tgsentinel/internal/resolver"
	"github.com/redoracle/tgsentinel/internal/store"
	"github.com/redoracle/tgsentinel/internal/stream"
	"github.com/redoracle/tgsentinel/internal/tuner"
	"github.com/redoracle/tgsentinel/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the ingestion consumer, scoring pipeline, and feedback processor",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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
	str, err := stream.New(ctx, streamConfig(cfg))
	if err != nil {
		return err
	}
	defer str.Close()

	semanticEval, err := newSemanticEvaluator(cfg, stores.Feedback)
	if err != nil {
		return err
	}

	chatClient, err := newChatClient()
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		shutdown, err := metrics.SetupTracing(ctx, "tgsentinel-worker")
		if err != nil {
			slog.Warn("worker: tracing setup failed, continuing without it", "error", err)
		} else {
			defer shutdown(context.Background())
		}
		if m, err = metrics.New(); err != nil {
			slog.Warn("worker: metrics setup failed, continuing without counters", "error", err)
			m = nil
		}
	}

	threshTuner := tuner.New(cfgStore, stores.Adjustments)
	policy := feedback.VolumePolicy{}

	fbProcessor := feedback.NewProcessor(stores.Feedback, stores.BatchHistory, coordStore, semanticEval, threshTuner, policy)
	if err := fbProcessor.LoadQueue(ctx); err != nil {
		slog.Warn("worker: feedback queue load failed, continuing with an empty queue", "error", err)
	}

	rateLimitedDispatcher := worker.NewRateLimitedDispatcher(
		&worker.ChatDispatcher{Client: chatClient},
		cfg.AlertRateLimit,
	)

	pipeline := &worker.Pipeline{
		Config:            cfgStore,
		Messages:          stores.Messages,
		Lookup:            resolver.NewStaticParticipantLookup(),
		Semantic:          semanticEval,
		Dispatcher:        rateLimitedDispatcher,
		Metrics:           m,
		ReactionThreshold: 3,
		ReplyThreshold:    3,
	}

	consumer := &worker.Consumer{Stream: str, Pipeline: pipeline}

	controller := lifecycle.New(cfg, coordStore, newSessionClientFunc())

	sweeper := &store.Sweeper{
		Messages: stores.Messages,
		Config: func() store.RetentionConfig {
			c := cfgStore.Current()
			return store.RetentionConfig{
				RetentionDays:   c.Retention.RetentionDays,
				AlertMultiplier: c.Retention.AlertMultiplier,
				MaxMessages:     c.Retention.MaxMessages,
				SweepInterval:   c.Retention.SweepInterval,
				VacuumInterval:  c.Retention.VacuumInterval,
			}
		},
	}
	if v, ok := stores.Messages.(store.Vacuumer); ok {
		sweeper.Vacuum = v
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return cfgStore.Watch(gctx) })
	group.Go(func() error { return fbProcessor.Run(gctx) })
	group.Go(func() error { return sweeper.Run(gctx) })
	group.Go(func() error { return rateLimitedDispatcher.RunCleanup(gctx, time.Hour, 24*time.Hour) })
	group.Go(func() error {
		// The pipeline's ChatDispatcher touches the platform client on
		// every alert, so ingestion doesn't start until a session has
		// been imported and the handshake gate opens (spec.md §4.9's
		// import boundary is the admin-facing import-session command).
		slog.Info("worker: waiting for an authorized session before consuming")
		if _, err := controller.WaitForAuth(gctx); err != nil {
			return err
		}
		slog.Info("worker: session authorized, starting consumer", "generation", controller.Generation())
		return consumer.Run(gctx)
	})

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}
