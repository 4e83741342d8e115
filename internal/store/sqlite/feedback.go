package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/redoracle/tgsentinel/internal/store"
)

// FeedbackStore implements store.FeedbackStore backed by SQLite.
type FeedbackStore struct {
	db *sqlx.DB
}

func NewFeedbackStore(db *sqlx.DB) *FeedbackStore {
	return &FeedbackStore{db: db}
}

func (s *FeedbackStore) Record(ctx context.Context, fb store.Feedback) error {
	if fb.ID == uuid.Nil {
		fb.ID = store.GenNewID()
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record feedback: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO feedback (id, chat_id, msg_id, positive, created_at) VALUES (?,?,?,?,?)`,
		fb.ID.String(), fb.ChatID, fb.MsgID, fb.Positive, fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("record feedback: insert feedback: %w", err)
	}
	for _, profileID := range fb.Profiles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO feedback_profiles (feedback_id, profile_id) VALUES (?,?)`, fb.ID.String(), profileID); err != nil {
			return fmt.Errorf("record feedback: insert feedback_profiles(%s): %w", profileID, err)
		}
	}
	return tx.Commit()
}

func (s *FeedbackStore) SamplesForProfile(ctx context.Context, profileID string, limit int) ([]store.FeedbackSample, error) {
	var rows []struct {
		Text     string `db:"text"`
		Positive bool   `db:"positive"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT m.message_text AS text, f.positive AS positive
		FROM feedback f
		JOIN feedback_profiles fp ON fp.feedback_id = f.id
		JOIN messages m ON m.chat_id = f.chat_id AND m.msg_id = f.msg_id
		WHERE fp.profile_id = ?
		ORDER BY f.created_at DESC
		LIMIT ?
	`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("samples for profile %s: %w", profileID, err)
	}
	out := make([]store.FeedbackSample, len(rows))
	for i, r := range rows {
		out[i] = store.FeedbackSample{Text: r.Text, Positive: r.Positive}
	}
	return out, nil
}

func (s *FeedbackStore) PendingProfiles(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT profile_id FROM feedback_profiles WHERE processed_at IS NULL ORDER BY profile_id`)
	if err != nil {
		return nil, fmt.Errorf("pending profiles: %w", err)
	}
	return ids, nil
}
