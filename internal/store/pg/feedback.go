package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/redoracle/tgsentinel/internal/store"
)

// FeedbackStore implements store.FeedbackStore backed by Postgres.
type FeedbackStore struct {
	db *sqlx.DB
}

func NewFeedbackStore(db *sqlx.DB) *FeedbackStore {
	return &FeedbackStore{db: db}
}

// Record inserts the feedback row and fans it out to feedback_profiles, one
// row per matched profile, inside a single transaction (spec.md §4.6).
func (s *FeedbackStore) Record(ctx context.Context, fb store.Feedback) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record feedback: begin tx: %w", err)
	}
	defer tx.Rollback()

	if fb.ID == uuid.Nil {
		fb.ID = store.GenNewID()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO feedback (id, chat_id, msg_id, positive, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, fb.ID, fb.ChatID, fb.MsgID, fb.Positive, fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("record feedback: insert feedback: %w", err)
	}

	for _, profileID := range fb.Profiles {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO feedback_profiles (feedback_id, profile_id)
			VALUES ($1, $2)
		`, fb.ID, profileID)
		if err != nil {
			return fmt.Errorf("record feedback: insert feedback_profiles(%s): %w", profileID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record feedback: commit: %w", err)
	}
	return nil
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
		WHERE fp.profile_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2
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
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT profile_id FROM feedback_profiles
		WHERE processed_at IS NULL
		ORDER BY profile_id
	`)
	if err != nil {
		return nil, fmt.Errorf("pending profiles: %w", err)
	}
	return ids, nil
}
