package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/redoracle/tgsentinel/internal/store"
)

// BatchHistoryStore implements store.BatchHistoryStore backed by Postgres.
type BatchHistoryStore struct {
	db *sqlx.DB
}

func NewBatchHistoryStore(db *sqlx.DB) *BatchHistoryStore {
	return &BatchHistoryStore{db: db}
}

func (s *BatchHistoryStore) Record(ctx context.Context, e store.BatchHistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = store.GenNewID()
	}
	if e.RanAt.IsZero() {
		e.RanAt = e.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_history (id, profile_ids, sample_count, started_at, finished_at, trigger, ran_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, pqStringArray(e.ProfileIDs), e.SampleCount, e.StartedAt, e.FinishedAt, e.Trigger, e.RanAt)
	if err != nil {
		return fmt.Errorf("record batch history %s: %w", e.ID, err)
	}
	return nil
}

func (s *BatchHistoryStore) Recent(ctx context.Context, limit int) ([]store.BatchHistoryEntry, error) {
	var rows []struct {
		ID          uuid.UUID `db:"id"`
		ProfileIDs  []byte    `db:"profile_ids"`
		SampleCount int       `db:"sample_count"`
		StartedAt   time.Time `db:"started_at"`
		FinishedAt  time.Time `db:"finished_at"`
		Trigger     string    `db:"trigger"`
		RanAt       time.Time `db:"ran_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, profile_ids, sample_count, started_at, finished_at, trigger, ran_at
		FROM batch_history
		ORDER BY ran_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent batch history: %w", err)
	}
	out := make([]store.BatchHistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = store.BatchHistoryEntry{
			ID: r.ID, ProfileIDs: scanStringArray(r.ProfileIDs),
			SampleCount: r.SampleCount, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt,
			Trigger: r.Trigger, RanAt: r.RanAt,
		}
	}
	return out, nil
}
