package pg

import (
	"context"
	"fmt"

	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/redoracle/tgsentinel/internal/store"
)

// DeliveryStore implements store.DeliveryStore backed by Postgres.
type DeliveryStore struct {
	db *sqlx.DB
}

func NewDeliveryStore(db *sqlx.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

func (s *DeliveryStore) Record(ctx context.Context, d store.WebhookDelivery) error {
	if d.ID == uuid.Nil {
		d.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, profile_id, chat_id, target, mode, status, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.ProfileID, d.ChatID, d.Target, d.Mode, d.Status, nilStr(d.Error), d.AttemptedAt)
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", d.ID, err)
	}
	return nil
}

func (s *DeliveryStore) RecentForProfile(ctx context.Context, profileID string, limit int) ([]store.WebhookDelivery, error) {
	var rows []struct {
		ID          uuid.UUID `db:"id"`
		ProfileID   string    `db:"profile_id"`
		ChatID      int64     `db:"chat_id"`
		Target      string    `db:"target"`
		Mode        string    `db:"mode"`
		Status      string    `db:"status"`
		Error       *string   `db:"error"`
		AttemptedAt time.Time `db:"attempted_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, profile_id, chat_id, target, mode, status, error, attempted_at
		FROM webhook_deliveries
		WHERE profile_id = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent deliveries for profile %s: %w", profileID, err)
	}
	out := make([]store.WebhookDelivery, len(rows))
	for i, r := range rows {
		errStr := ""
		if r.Error != nil {
			errStr = *r.Error
		}
		out[i] = store.WebhookDelivery{
			ID: r.ID, ProfileID: r.ProfileID, ChatID: r.ChatID,
			Target: r.Target, Mode: r.Mode, Status: r.Status, Error: errStr,
			AttemptedAt: r.AttemptedAt,
		}
	}
	return out, nil
}
