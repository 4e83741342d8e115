package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/redoracle/tgsentinel/internal/store"
)

// MessageStore implements store.MessageStore backed by Postgres.
type MessageStore struct {
	db *sqlx.DB
}

func NewMessageStore(db *sqlx.DB) *MessageStore {
	return &MessageStore{db: db}
}

type messageRow struct {
	ChatID             int64     `db:"chat_id"`
	MsgID              int64     `db:"msg_id"`
	ChatTitle          string    `db:"chat_title"`
	SenderID           int64     `db:"sender_id"`
	SenderName         string    `db:"sender_name"`
	MessageText        string    `db:"message_text"`
	ContentHash        string    `db:"content_hash"`
	Score              float32   `db:"score"`
	KeywordScore       float32   `db:"keyword_score"`
	SemanticScoresJSON []byte    `db:"semantic_scores_json"`
	SemanticType       string    `db:"semantic_type"`
	Triggers           []byte    `db:"triggers"`
	TriggerAnnotations []byte    `db:"trigger_annotations"`
	MatchedProfiles    []byte    `db:"matched_profiles"`
	Alerted            bool      `db:"alerted"`
	FeedAlertFlag      bool      `db:"feed_alert_flag"`
	FeedInterestFlag   bool      `db:"feed_interest_flag"`
	DigestSchedule     string    `db:"digest_schedule"`
	DigestProcessed    bool      `db:"digest_processed"`
	CreatedAt          time.Time `db:"created_at"`
}

func decodeAnnotations(raw []byte) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	var out map[string][]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func decodeSemanticScores(raw []byte) map[string]float32 {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]float32
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func encodeJSON(v any) []byte {
	if v == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func (r messageRow) toDomain() store.StoredMessage {
	return store.StoredMessage{
		ChatID: r.ChatID, MsgID: r.MsgID,
		ChatTitle: r.ChatTitle, SenderID: r.SenderID, SenderName: r.SenderName,
		MessageText: r.MessageText, ContentHash: r.ContentHash,
		Score: r.Score, KeywordScore: r.KeywordScore,
		SemanticScores: decodeSemanticScores(r.SemanticScoresJSON), SemanticType: r.SemanticType,
		Triggers: scanStringArray(r.Triggers), TriggerAnnotations: decodeAnnotations(r.TriggerAnnotations),
		MatchedProfiles: scanStringArray(r.MatchedProfiles),
		Alerted:         r.Alerted, FeedAlertFlag: r.FeedAlertFlag, FeedInterestFlag: r.FeedInterestFlag,
		DigestSchedule: r.DigestSchedule, DigestProcessed: r.DigestProcessed,
		CreatedAt: r.CreatedAt,
	}
}

const messageSelectCols = `chat_id, msg_id, chat_title, sender_id, sender_name, message_text, content_hash,
	score, keyword_score, semantic_scores_json, semantic_type, triggers, trigger_annotations, matched_profiles,
	alerted, feed_alert_flag, feed_interest_flag, digest_schedule, digest_processed, created_at`

// Upsert inserts or merges a scored message by (chat_id, msg_id). Score and
// keyword_score keep the greater value, matched_profiles/triggers union,
// alerted/feed flags OR-merge — this keeps repeated at-least-once delivery
// of the same message idempotent (spec.md §5's "processing is
// at-least-once; storage layer makes repeat delivery idempotent via
// UPSERT").
func (s *MessageStore) Upsert(ctx context.Context, m store.StoredMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageSelectCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (chat_id, msg_id) DO UPDATE SET
			chat_title = EXCLUDED.chat_title,
			sender_name = EXCLUDED.sender_name,
			message_text = EXCLUDED.message_text,
			score = GREATEST(messages.score, EXCLUDED.score),
			keyword_score = GREATEST(messages.keyword_score, EXCLUDED.keyword_score),
			semantic_scores_json = EXCLUDED.semantic_scores_json,
			semantic_type = EXCLUDED.semantic_type,
			triggers = (SELECT ARRAY(SELECT DISTINCT unnest(messages.triggers || EXCLUDED.triggers))),
			trigger_annotations = EXCLUDED.trigger_annotations,
			matched_profiles = (SELECT ARRAY(SELECT DISTINCT unnest(messages.matched_profiles || EXCLUDED.matched_profiles) ORDER BY 1)),
			alerted = messages.alerted OR EXCLUDED.alerted,
			feed_alert_flag = messages.feed_alert_flag OR EXCLUDED.feed_alert_flag,
			feed_interest_flag = messages.feed_interest_flag OR EXCLUDED.feed_interest_flag,
			digest_schedule = EXCLUDED.digest_schedule,
			digest_processed = messages.digest_processed OR EXCLUDED.digest_processed
		`,
		m.ChatID, m.MsgID, m.ChatTitle, m.SenderID, m.SenderName, m.MessageText, m.ContentHash,
		m.Score, m.KeywordScore, encodeJSON(m.SemanticScores), m.SemanticType,
		pqStringArray(m.Triggers), encodeJSON(m.TriggerAnnotations), pqStringArray(m.MatchedProfiles),
		m.Alerted, m.FeedAlertFlag, m.FeedInterestFlag, m.DigestSchedule, m.DigestProcessed, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert message chat=%d msg=%d: %w", m.ChatID, m.MsgID, err)
	}
	return nil
}

func (s *MessageStore) FeedCandidates(ctx context.Context, schedule string, since time.Time, minScore float32) ([]store.StoredMessage, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+messageSelectCols+`
		FROM messages
		WHERE digest_schedule = $1 AND digest_processed = false
		  AND (feed_interest_flag OR feed_alert_flag)
		  AND created_at >= $2 AND score >= $3
		ORDER BY score DESC, created_at DESC
	`, schedule, since, minScore)
	if err != nil {
		return nil, fmt.Errorf("feed candidates (%s): %w", schedule, err)
	}
	out := make([]store.StoredMessage, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *MessageStore) MarkDigestProcessed(ctx context.Context, chatIDs, msgIDs []int64) error {
	if len(chatIDs) != len(msgIDs) || len(chatIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET digest_processed = true
		WHERE (chat_id, msg_id) IN (
			SELECT UNNEST($1::bigint[]), UNNEST($2::bigint[])
		)
	`, pqInt64Array(chatIDs), pqInt64Array(msgIDs))
	if err != nil {
		return fmt.Errorf("mark digest processed: %w", err)
	}
	return nil
}

// PurgeRetention implements the retention sweep (spec.md §4.3): the
// non-alerted and alerted horizons are applied first, then, if maxMessages
// caps the table, the oldest remaining non-alerted rows are evicted until
// the count is back under the cap.
func (s *MessageStore) PurgeRetention(ctx context.Context, cutoff, alertedCutoff time.Time, maxMessages int) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("purge retention: begin: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE NOT alerted AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge retention: non-alerted: %w", err)
	}
	n, _ := res.RowsAffected()
	removed += n

	res, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE alerted AND created_at < $1`, alertedCutoff)
	if err != nil {
		return 0, fmt.Errorf("purge retention: alerted: %w", err)
	}
	n, _ = res.RowsAffected()
	removed += n

	if maxMessages > 0 {
		var total int64
		if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM messages`); err != nil {
			return 0, fmt.Errorf("purge retention: count: %w", err)
		}
		if excess := total - int64(maxMessages); excess > 0 {
			res, err = tx.ExecContext(ctx, `
				DELETE FROM messages WHERE (chat_id, msg_id) IN (
					SELECT chat_id, msg_id FROM messages WHERE NOT alerted
					ORDER BY created_at ASC LIMIT $1
				)
			`, excess)
			if err != nil {
				return 0, fmt.Errorf("purge retention: cap eviction: %w", err)
			}
			n, _ = res.RowsAffected()
			removed += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("purge retention: commit: %w", err)
	}
	return removed, nil
}

// Vacuum reclaims space freed by the retention sweep. Postgres forbids
// VACUUM inside a transaction block, so this runs as its own statement
// against the pool (store.Vacuumer, spec.md §4.3's "periodic VACUUM ...
// outside any transaction").
func (s *MessageStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM messages`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
