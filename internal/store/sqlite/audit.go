package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/redoracle/tgsentinel/internal/store"
)

// DeliveryStore implements store.DeliveryStore backed by SQLite.
type DeliveryStore struct{ db *sqlx.DB }

func NewDeliveryStore(db *sqlx.DB) *DeliveryStore { return &DeliveryStore{db: db} }

func (s *DeliveryStore) Record(ctx context.Context, d store.WebhookDelivery) error {
	if d.ID == uuid.Nil {
		d.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, profile_id, chat_id, target, mode, status, error, attempted_at)
		VALUES (?,?,?,?,?,?,?,?)
	`, d.ID.String(), d.ProfileID, d.ChatID, d.Target, d.Mode, d.Status, nullableStr(d.Error), d.AttemptedAt)
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", d.ID, err)
	}
	return nil
}

func (s *DeliveryStore) RecentForProfile(ctx context.Context, profileID string, limit int) ([]store.WebhookDelivery, error) {
	var rows []struct {
		ID          string    `db:"id"`
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
		FROM webhook_deliveries WHERE profile_id = ? ORDER BY attempted_at DESC LIMIT ?
	`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent deliveries for profile %s: %w", profileID, err)
	}
	out := make([]store.WebhookDelivery, len(rows))
	for i, r := range rows {
		id, _ := uuid.Parse(r.ID)
		errStr := ""
		if r.Error != nil {
			errStr = *r.Error
		}
		out[i] = store.WebhookDelivery{ID: id, ProfileID: r.ProfileID, ChatID: r.ChatID, Target: r.Target, Mode: r.Mode, Status: r.Status, Error: errStr, AttemptedAt: r.AttemptedAt}
	}
	return out, nil
}

// AdjustmentStore implements store.AdjustmentStore backed by SQLite.
type AdjustmentStore struct{ db *sqlx.DB }

func NewAdjustmentStore(db *sqlx.DB) *AdjustmentStore { return &AdjustmentStore{db: db} }

func (s *AdjustmentStore) Record(ctx context.Context, a store.ProfileAdjustment) error {
	if a.ID == uuid.Nil {
		a.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_adjustments (id, profile_id, field, old_value, new_value, reason, adjusted_at)
		VALUES (?,?,?,?,?,?,?)
	`, a.ID.String(), a.ProfileID, a.Field, a.OldValue, a.NewValue, nullableStr(a.Reason), a.AdjustedAt)
	if err != nil {
		return fmt.Errorf("record profile adjustment %s: %w", a.ID, err)
	}
	return nil
}

func (s *AdjustmentStore) HistoryForProfile(ctx context.Context, profileID string, limit int) ([]store.ProfileAdjustment, error) {
	var rows []struct {
		ID         string    `db:"id"`
		ProfileID  string    `db:"profile_id"`
		Field      string    `db:"field"`
		OldValue   float32   `db:"old_value"`
		NewValue   float32   `db:"new_value"`
		Reason     *string   `db:"reason"`
		AdjustedAt time.Time `db:"adjusted_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, profile_id, field, old_value, new_value, reason, adjusted_at
		FROM profile_adjustments WHERE profile_id = ? ORDER BY adjusted_at DESC LIMIT ?
	`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("adjustment history for profile %s: %w", profileID, err)
	}
	out := make([]store.ProfileAdjustment, len(rows))
	for i, r := range rows {
		id, _ := uuid.Parse(r.ID)
		reason := ""
		if r.Reason != nil {
			reason = *r.Reason
		}
		out[i] = store.ProfileAdjustment{ID: id, ProfileID: r.ProfileID, Field: r.Field, OldValue: r.OldValue, NewValue: r.NewValue, Reason: reason, AdjustedAt: r.AdjustedAt}
	}
	return out, nil
}

// BatchHistoryStore implements store.BatchHistoryStore backed by SQLite.
type BatchHistoryStore struct{ db *sqlx.DB }

func NewBatchHistoryStore(db *sqlx.DB) *BatchHistoryStore { return &BatchHistoryStore{db: db} }

func (s *BatchHistoryStore) Record(ctx context.Context, e store.BatchHistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = store.GenNewID()
	}
	if e.RanAt.IsZero() {
		e.RanAt = e.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_history (id, profile_ids, sample_count, started_at, finished_at, trigger, ran_at) VALUES (?,?,?,?,?,?,?)
	`, e.ID.String(), encodeStrings(e.ProfileIDs), e.SampleCount, e.StartedAt, e.FinishedAt, e.Trigger, e.RanAt)
	if err != nil {
		return fmt.Errorf("record batch history %s: %w", e.ID, err)
	}
	return nil
}

func (s *BatchHistoryStore) Recent(ctx context.Context, limit int) ([]store.BatchHistoryEntry, error) {
	var rows []struct {
		ID          string    `db:"id"`
		ProfileIDs  string    `db:"profile_ids"`
		SampleCount int       `db:"sample_count"`
		StartedAt   time.Time `db:"started_at"`
		FinishedAt  time.Time `db:"finished_at"`
		Trigger     string    `db:"trigger"`
		RanAt       time.Time `db:"ran_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT id, profile_ids, sample_count, started_at, finished_at, trigger, ran_at FROM batch_history ORDER BY ran_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent batch history: %w", err)
	}
	out := make([]store.BatchHistoryEntry, len(rows))
	for i, r := range rows {
		id, _ := uuid.Parse(r.ID)
		out[i] = store.BatchHistoryEntry{
			ID: id, ProfileIDs: decodeStrings(r.ProfileIDs), SampleCount: r.SampleCount,
			StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, Trigger: r.Trigger, RanAt: r.RanAt,
		}
	}
	return out, nil
}

func nullableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
