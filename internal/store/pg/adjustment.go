package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/redoracle/tgsentinel/internal/store"
)

// AdjustmentStore implements store.AdjustmentStore backed by Postgres.
type AdjustmentStore struct {
	db *sqlx.DB
}

func NewAdjustmentStore(db *sqlx.DB) *AdjustmentStore {
	return &AdjustmentStore{db: db}
}

func (s *AdjustmentStore) Record(ctx context.Context, a store.ProfileAdjustment) error {
	if a.ID == uuid.Nil {
		a.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_adjustments (id, profile_id, field, old_value, new_value, reason, adjusted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.ProfileID, a.Field, a.OldValue, a.NewValue, nilStr(a.Reason), a.AdjustedAt)
	if err != nil {
		return fmt.Errorf("record profile adjustment %s: %w", a.ID, err)
	}
	return nil
}

func (s *AdjustmentStore) HistoryForProfile(ctx context.Context, profileID string, limit int) ([]store.ProfileAdjustment, error) {
	var rows []struct {
		ID         uuid.UUID `db:"id"`
		ProfileID  string    `db:"profile_id"`
		Field      string    `db:"field"`
		OldValue   float32   `db:"old_value"`
		NewValue   float32   `db:"new_value"`
		Reason     *string   `db:"reason"`
		AdjustedAt time.Time `db:"adjusted_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, profile_id, field, old_value, new_value, reason, adjusted_at
		FROM profile_adjustments
		WHERE profile_id = $1
		ORDER BY adjusted_at DESC
		LIMIT $2
	`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("adjustment history for profile %s: %w", profileID, err)
	}
	out := make([]store.ProfileAdjustment, len(rows))
	for i, r := range rows {
		reason := ""
		if r.Reason != nil {
			reason = *r.Reason
		}
		out[i] = store.ProfileAdjustment{
			ID: r.ID, ProfileID: r.ProfileID, Field: r.Field,
			OldValue: r.OldValue, NewValue: r.NewValue, Reason: reason, AdjustedAt: r.AdjustedAt,
		}
	}
	return out, nil
}
