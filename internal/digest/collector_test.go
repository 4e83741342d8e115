package digest

import (
	"context"
	"testing"
	"time"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/store"
)

type fakeMessageStore struct {
	rows []store.StoredMessage
}

func (f *fakeMessageStore) Upsert(context.Context, store.StoredMessage) error { return nil }
func (f *fakeMessageStore) FeedCandidates(context.Context, string, time.Time, float32) ([]store.StoredMessage, error) {
	return f.rows, nil
}
func (f *fakeMessageStore) MarkDigestProcessed(context.Context, []int64, []int64) error { return nil }
func (f *fakeMessageStore) PurgeRetention(context.Context, time.Time, time.Time, int) (int64, error) {
	return 0, nil
}

// TestCollectDeduplicatesAcrossProfiles covers spec.md's "Digest
// deduplication across profiles" worked example: two profiles both match
// the same (chat_id, msg_id); the collector must emit one entry with the
// union of matched_profiles and the max score.
func TestCollectDeduplicatesAcrossProfiles(t *testing.T) {
	now := time.Now()
	ms := &fakeMessageStore{rows: []store.StoredMessage{
		{ChatID: -100, MsgID: 7, Score: 1.0, KeywordScore: 1.0, MatchedProfiles: []string{"A"}, CreatedAt: now},
		{ChatID: -100, MsgID: 7, Score: 2.5, KeywordScore: 2.5, MatchedProfiles: []string{"B"}, CreatedAt: now.Add(time.Minute)},
	}}

	entries, err := Collect(context.Background(), ms, config.ScheduleHourly, 0, 10, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one deduplicated entry, got %d", len(entries))
	}
	e := entries[0]
	if e.EffectiveScore != 2.5 {
		t.Errorf("expected max score 2.5, got %v", e.EffectiveScore)
	}
	if len(e.MatchedProfiles) != 2 {
		t.Errorf("expected matched_profiles union of both profiles, got %v", e.MatchedProfiles)
	}
}

func TestCollectTopNRanking(t *testing.T) {
	now := time.Now()
	ms := &fakeMessageStore{rows: []store.StoredMessage{
		{ChatID: 1, MsgID: 1, Score: 1.0, CreatedAt: now},
		{ChatID: 1, MsgID: 2, Score: 5.0, CreatedAt: now},
		{ChatID: 1, MsgID: 3, Score: 3.0, CreatedAt: now},
	}}

	entries, err := Collect(context.Background(), ms, config.ScheduleHourly, 0, 2, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected top_n=2 entries, got %d", len(entries))
	}
	if entries[0].MsgID != 2 || entries[1].MsgID != 3 {
		t.Fatalf("expected entries ranked by score desc, got %+v", entries)
	}
}

func TestCollectEffectiveScorePrefersSemanticOverFallback(t *testing.T) {
	now := time.Now()
	ms := &fakeMessageStore{rows: []store.StoredMessage{
		{ChatID: 1, MsgID: 1, Score: 0.1, KeywordScore: 0, SemanticScores: map[string]float32{"tech": 0.9}, CreatedAt: now},
	}}
	entries, err := Collect(context.Background(), ms, config.ScheduleHourly, 0, 10, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if entries[0].EffectiveScore != 0.9 {
		t.Errorf("expected effective score to take the semantic max, got %v", entries[0].EffectiveScore)
	}
}
