package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/coord"
	"github.com/redoracle/tgsentinel/internal/lifecycle"
	"github.com/redoracle/tgsentinel/internal/platform"
	"github.com/redoracle/tgsentinel/internal/platform/discord"
	"github.com/redoracle/tgsentinel/internal/platform/telegram"
	"github.com/redoracle/tgsentinel/internal/scoring/semantic"
	"github.com/redoracle/tgsentinel/internal/store"
	"github.com/redoracle/tgsentinel/internal/store/pg"
	"github.com/redoracle/tgsentinel/internal/store/sqlite"
	"github.com/redoracle/tgsentinel/internal/stream"
)

// appStores bundles every persistence-layer interface the worker, digest
// engine, and feedback processor need, plus the handle to close them.
type appStores struct {
	Messages     store.MessageStore
	Feedback     store.FeedbackStore
	Delivery     store.DeliveryStore
	Adjustments  store.AdjustmentStore
	BatchHistory store.BatchHistoryStore
	Close        func() error
}

// openStores picks the SQLite or Postgres backend per cfg.DBURI
// (store.DetectBackend) and runs its additive migrations before returning.
func openStores(ctx context.Context, cfg *config.Config) (*appStores, error) {
	switch store.DetectBackend(cfg.DBURI) {
	case store.BackendPostgres:
		db, err := pg.Open(cfg.DBURI)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(db, "migrations"); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return storesFromPostgres(db), nil
	default:
		path := store.SQLitePathFromURI(cfg.DBURI)
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return storesFromSQLite(db), nil
	}
}

func storesFromPostgres(db *sqlx.DB) *appStores {
	return &appStores{
		Messages:     pg.NewMessageStore(db),
		Feedback:     pg.NewFeedbackStore(db),
		Delivery:     pg.NewDeliveryStore(db),
		Adjustments:  pg.NewAdjustmentStore(db),
		BatchHistory: pg.NewBatchHistoryStore(db),
		Close:        db.Close,
	}
}

func storesFromSQLite(db *sqlx.DB) *appStores {
	return &appStores{
		Messages:     sqlite.NewMessageStore(db),
		Feedback:     sqlite.NewFeedbackStore(db),
		Delivery:     sqlite.NewDeliveryStore(db),
		Adjustments:  sqlite.NewAdjustmentStore(db),
		BatchHistory: sqlite.NewBatchHistoryStore(db),
		Close:        db.Close,
	}
}

// newRedisClient builds the shared coordination-store connection; the
// ingestion stream (internal/stream.New) opens its own client internally
// from the same address so the consumer-group lifecycle stays self-
// contained, per spec.md §6.1.
func newRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func streamConfig(cfg *config.Config) stream.Config {
	return stream.Config{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Stream:   cfg.Redis.Stream,
		Group:    cfg.Redis.Group,
		Consumer: cfg.Redis.Consumer,
		MaxLen:   100_000,
	}
}

// feedbackSampleSource adapts store.FeedbackStore to semantic.SampleSource,
// capping the sample window the centroid recompute draws from.
type feedbackSampleSource struct {
	store store.FeedbackStore
	limit int
}

func (f feedbackSampleSource) SamplesForProfile(ctx context.Context, profileID string) ([]semantic.FeedbackSample, error) {
	rows, err := f.store.SamplesForProfile(ctx, profileID, f.limit)
	if err != nil {
		return nil, err
	}
	out := make([]semantic.FeedbackSample, len(rows))
	for i, r := range rows {
		out[i] = semantic.FeedbackSample{Text: r.Text, Positive: r.Positive}
	}
	return out, nil
}

// newSemanticEvaluator wires an OpenAI-compatible embedder when
// OPENAI_API_KEY is set, degrading to a nil embedder (every score reports
// ok=false) otherwise, per spec.md §7's "Embedding backend absent".
func newSemanticEvaluator(cfg *config.Config, fb store.FeedbackStore) (*semantic.Evaluator, error) {
	var embedder semantic.Embedder
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		embedder = semantic.NewOpenAIEmbedder(key, os.Getenv("OPENAI_BASE_URL"), cfg.EmbeddingsModel)
	}
	return semantic.New(embedder, feedbackSampleSource{store: fb, limit: 200}, 512)
}

// newChatClient picks one outbound platform adapter by whichever bot token
// env var is set. A nil client is valid: dispatch/delivery simply errors if
// an alert/digest ever actually needs to send (spec.md's single-tenant
// scope assumes exactly one platform is configured per deployment).
func newChatClient() (platform.ChatClient, error) {
	if tok := os.Getenv("TELEGRAM_BOT_TOKEN"); tok != "" {
		return telegram.New(tok)
	}
	if tok := os.Getenv("DISCORD_BOT_TOKEN"); tok != "" {
		return discord.New(tok)
	}
	return nil, nil
}

// newSessionClientFunc builds the lifecycle controller's NewClientFunc
// around the Telegram session-capable client, matching spec.md §6.2's
// TG_SESSION_PATH-keyed session lifecycle.
func newSessionClientFunc() lifecycle.NewClientFunc {
	return func(cfg *config.Config) (lifecycle.SessionClient, error) {
		tok := os.Getenv("TELEGRAM_BOT_TOKEN")
		if tok == "" {
			return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
		}
		return telegram.NewSessionClient(tok)
	}
}

func newCoordStore(cfg *config.Config) *coord.Store {
	return coord.New(newRedisClient(cfg))
}
