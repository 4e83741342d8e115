package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied with CREATE TABLE IF NOT EXISTS / ADD COLUMN only —
// additive on every startup, matching spec.md §6.3's "Migrations are
// additive on startup."
var schema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		chat_id INTEGER NOT NULL,
		msg_id INTEGER NOT NULL,
		chat_title TEXT NOT NULL DEFAULT '',
		sender_id INTEGER NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		message_text TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		keyword_score REAL NOT NULL DEFAULT 0,
		semantic_scores_json TEXT NOT NULL DEFAULT '{}',
		semantic_type TEXT NOT NULL DEFAULT '',
		triggers TEXT NOT NULL DEFAULT '[]',
		trigger_annotations TEXT NOT NULL DEFAULT '{}',
		matched_profiles TEXT NOT NULL DEFAULT '[]',
		alerted INTEGER NOT NULL DEFAULT 0,
		feed_alert_flag INTEGER NOT NULL DEFAULT 0,
		feed_interest_flag INTEGER NOT NULL DEFAULT 0,
		digest_schedule TEXT NOT NULL DEFAULT 'none',
		digest_processed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (chat_id, msg_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at)`,
	`DROP INDEX IF EXISTS idx_messages_feed_pending`,
	`CREATE INDEX IF NOT EXISTS idx_messages_feed_pending_v2 ON messages (digest_schedule, created_at)
		WHERE digest_processed = 0 AND (feed_interest_flag OR feed_alert_flag)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		chat_id INTEGER NOT NULL,
		msg_id INTEGER NOT NULL,
		positive INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feedback_profiles (
		feedback_id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		processed_at DATETIME,
		PRIMARY KEY (feedback_id, profile_id)
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		chat_id INTEGER NOT NULL,
		target TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		attempted_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS profile_adjustments (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		field TEXT NOT NULL,
		old_value REAL NOT NULL,
		new_value REAL NOT NULL,
		reason TEXT,
		adjusted_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS batch_history (
		id TEXT PRIMARY KEY,
		profile_ids TEXT NOT NULL DEFAULT '[]',
		sample_count INTEGER NOT NULL,
		started_at DATETIME,
		finished_at DATETIME,
		trigger TEXT NOT NULL DEFAULT 'interval',
		ran_at DATETIME NOT NULL
	)`,
}

// Migrate applies the additive schema. Safe to call on every startup.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
