package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/redoracle/tgsentinel/internal/store"
)

// MessageStore implements store.MessageStore backed by SQLite. Array/map
// columns are JSON-encoded text, since SQLite has no native array or JSON
// binary type.
type MessageStore struct {
	db *sqlx.DB
}

func NewMessageStore(db *sqlx.DB) *MessageStore {
	return &MessageStore{db: db}
}

func encodeStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeAnnotations(m map[string][]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeAnnotations(raw string) map[string][]string {
	if raw == "" || raw == "{}" {
		return nil
	}
	var out map[string][]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeSemanticScores(m map[string]float32) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeSemanticScores(raw string) map[string]float32 {
	if raw == "" || raw == "{}" {
		return nil
	}
	var out map[string]float32
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, x := range b {
		set[x] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for x := range set {
		out = append(out, x)
	}
	sortStrings(out)
	return out
}

// sortStrings is a small insertion sort, kept local to avoid importing
// "sort" for the handful of short slices this package merges.
func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
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
	SemanticScoresJSON string    `db:"semantic_scores_json"`
	SemanticType       string    `db:"semantic_type"`
	Triggers           string    `db:"triggers"`
	TriggerAnnotations string    `db:"trigger_annotations"`
	MatchedProfiles    string    `db:"matched_profiles"`
	Alerted            bool      `db:"alerted"`
	FeedAlertFlag      bool      `db:"feed_alert_flag"`
	FeedInterestFlag   bool      `db:"feed_interest_flag"`
	DigestSchedule     string    `db:"digest_schedule"`
	DigestProcessed    bool      `db:"digest_processed"`
	CreatedAt          time.Time `db:"created_at"`
}

func (r messageRow) toDomain() store.StoredMessage {
	return store.StoredMessage{
		ChatID: r.ChatID, MsgID: r.MsgID,
		ChatTitle: r.ChatTitle, SenderID: r.SenderID, SenderName: r.SenderName,
		MessageText: r.MessageText, ContentHash: r.ContentHash,
		Score: r.Score, KeywordScore: r.KeywordScore,
		SemanticScores: decodeSemanticScores(r.SemanticScoresJSON), SemanticType: r.SemanticType,
		Triggers: decodeStrings(r.Triggers), TriggerAnnotations: decodeAnnotations(r.TriggerAnnotations),
		MatchedProfiles: decodeStrings(r.MatchedProfiles),
		Alerted:         r.Alerted, FeedAlertFlag: r.FeedAlertFlag, FeedInterestFlag: r.FeedInterestFlag,
		DigestSchedule: r.DigestSchedule, DigestProcessed: r.DigestProcessed,
		CreatedAt: r.CreatedAt,
	}
}

const messageSelectCols = `chat_id, msg_id, chat_title, sender_id, sender_name, message_text, content_hash,
	score, keyword_score, semantic_scores_json, semantic_type, triggers, trigger_annotations, matched_profiles,
	alerted, feed_alert_flag, feed_interest_flag, digest_schedule, digest_processed, created_at`

// Upsert mirrors the Postgres implementation's merge semantics (OR-merge
// alerted/feed flags, union matched_profiles/triggers, keep the greater
// score) but reads the existing row first since SQLite's
// INSERT ... ON CONFLICT cannot express array-union inline over JSON text.
func (s *MessageStore) Upsert(ctx context.Context, m store.StoredMessage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert message: begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing messageRow
	err = tx.GetContext(ctx, &existing, `SELECT `+messageSelectCols+` FROM messages WHERE chat_id = ? AND msg_id = ?`, m.ChatID, m.MsgID)
	merged := m
	if err == nil {
		prev := existing.toDomain()
		if prev.Score > merged.Score {
			merged.Score = prev.Score
		}
		if prev.KeywordScore > merged.KeywordScore {
			merged.KeywordScore = prev.KeywordScore
		}
		merged.MatchedProfiles = unionSorted(prev.MatchedProfiles, m.MatchedProfiles)
		merged.Triggers = unionSorted(prev.Triggers, m.Triggers)
		merged.Alerted = prev.Alerted || m.Alerted
		merged.FeedAlertFlag = prev.FeedAlertFlag || m.FeedAlertFlag
		merged.FeedInterestFlag = prev.FeedInterestFlag || m.FeedInterestFlag
		merged.DigestProcessed = prev.DigestProcessed || m.DigestProcessed
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageSelectCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (chat_id, msg_id) DO UPDATE SET
			chat_title=excluded.chat_title, sender_name=excluded.sender_name, message_text=excluded.message_text,
			score=excluded.score, keyword_score=excluded.keyword_score,
			semantic_scores_json=excluded.semantic_scores_json, semantic_type=excluded.semantic_type,
			triggers=excluded.triggers, trigger_annotations=excluded.trigger_annotations,
			matched_profiles=excluded.matched_profiles,
			alerted=excluded.alerted, feed_alert_flag=excluded.feed_alert_flag, feed_interest_flag=excluded.feed_interest_flag,
			digest_schedule=excluded.digest_schedule, digest_processed=excluded.digest_processed
	`,
		merged.ChatID, merged.MsgID, merged.ChatTitle, merged.SenderID, merged.SenderName, merged.MessageText, merged.ContentHash,
		merged.Score, merged.KeywordScore, encodeSemanticScores(merged.SemanticScores), merged.SemanticType,
		encodeStrings(merged.Triggers), encodeAnnotations(merged.TriggerAnnotations), encodeStrings(merged.MatchedProfiles),
		merged.Alerted, merged.FeedAlertFlag, merged.FeedInterestFlag, merged.DigestSchedule, merged.DigestProcessed, merged.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert message chat=%d msg=%d: %w", m.ChatID, m.MsgID, err)
	}
	return tx.Commit()
}

func (s *MessageStore) FeedCandidates(ctx context.Context, schedule string, since time.Time, minScore float32) ([]store.StoredMessage, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+messageSelectCols+` FROM messages
		WHERE digest_schedule = ? AND digest_processed = 0
		  AND (feed_interest_flag OR feed_alert_flag)
		  AND created_at >= ? AND score >= ?
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
	if len(chatIDs) != len(msgIDs) {
		return fmt.Errorf("mark digest processed: mismatched id slices")
	}
	if len(chatIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark digest processed: begin tx: %w", err)
	}
	defer tx.Rollback()
	for i := range chatIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET digest_processed = 1 WHERE chat_id = ? AND msg_id = ?`, chatIDs[i], msgIDs[i]); err != nil {
			return fmt.Errorf("mark digest processed chat=%d msg=%d: %w", chatIDs[i], msgIDs[i], err)
		}
	}
	return tx.Commit()
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
	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE NOT alerted AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge retention: non-alerted: %w", err)
	}
	n, _ := res.RowsAffected()
	removed += n

	res, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE alerted AND created_at < ?`, alertedCutoff)
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
				DELETE FROM messages WHERE rowid IN (
					SELECT rowid FROM messages WHERE NOT alerted
					ORDER BY created_at ASC LIMIT ?
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

// Vacuum reclaims space freed by the retention sweep. SQLite forbids VACUUM
// inside a transaction, so this runs as its own statement against the pool
// (store.Vacuumer, spec.md §4.3's "periodic VACUUM ... outside any
// transaction").
func (s *MessageStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
