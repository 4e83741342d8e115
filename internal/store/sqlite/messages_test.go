package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/redoracle/tgsentinel/internal/store"
)

func newTestDB(t *testing.T) *MessageStore {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewMessageStore(db)
}

func TestUpsertIsIdempotent(t *testing.T) {
	ms := newTestDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	m := store.StoredMessage{
		ChatID: 1, MsgID: 100, SenderID: 42, MessageText: "breach detected",
		Score: 5.0, MatchedProfiles: []string{"security"}, FeedAlertFlag: true,
		DigestSchedule: "hourly", CreatedAt: now,
	}
	if err := ms.Upsert(ctx, m); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := ms.Upsert(ctx, m); err != nil {
		t.Fatalf("second upsert (redelivery): %v", err)
	}

	got, err := ms.FeedCandidates(ctx, "hourly", now.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("feed candidates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one row after duplicate upsert, got %d", len(got))
	}
}

func TestUpsertMergesFeedFlagsAndKeepsMaxScore(t *testing.T) {
	ms := newTestDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	first := store.StoredMessage{
		ChatID: 2, MsgID: 200, SenderID: 1, MessageText: "urgent now",
		Score: 3.0, FeedAlertFlag: true, MatchedProfiles: []string{"eng-urgent"},
		DigestSchedule: "hourly", CreatedAt: now,
	}
	second := store.StoredMessage{
		ChatID: 2, MsgID: 200, SenderID: 1, MessageText: "urgent now",
		Score: 7.0, FeedInterestFlag: true, MatchedProfiles: []string{"global-security"},
		DigestSchedule: "hourly", CreatedAt: now,
	}

	if err := ms.Upsert(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := ms.Upsert(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := ms.FeedCandidates(ctx, "hourly", now.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("feed candidates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one merged row, got %d", len(got))
	}
	row := got[0]
	if row.Score != 7.0 {
		t.Fatalf("expected merged score to keep the max (7.0), got %v", row.Score)
	}
	if !row.FeedAlertFlag || !row.FeedInterestFlag {
		t.Fatalf("expected both feed flags OR-merged, got alert=%v interest=%v", row.FeedAlertFlag, row.FeedInterestFlag)
	}
	if len(row.MatchedProfiles) != 2 {
		t.Fatalf("expected matched_profiles to union to 2 entries, got %v", row.MatchedProfiles)
	}
}

func TestDigestProcessedIsNonDecreasingUnderRedelivery(t *testing.T) {
	ms := newTestDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	m := store.StoredMessage{ChatID: 9, MsgID: 900, SenderID: 1, MessageText: "x", Score: 1, FeedAlertFlag: true, DigestSchedule: "daily", CreatedAt: now}
	if err := ms.Upsert(ctx, m); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ms.MarkDigestProcessed(ctx, []int64{9}, []int64{900}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	// Simulate a redelivered stream event for the same message, freshly
	// scored with digest_processed defaulting to false.
	if err := ms.Upsert(ctx, m); err != nil {
		t.Fatalf("redelivery upsert: %v", err)
	}

	got, err := ms.FeedCandidates(ctx, "daily", now.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("feed candidates: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected digest_processed to remain true (non-decreasing) after redelivery, but message reappeared in feed")
	}
}

func TestMarkDigestProcessedExcludesFromFeed(t *testing.T) {
	ms := newTestDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	m := store.StoredMessage{ChatID: 3, MsgID: 300, SenderID: 1, MessageText: "x", Score: 1, FeedAlertFlag: true, DigestSchedule: "daily", CreatedAt: now}
	if err := ms.Upsert(ctx, m); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ms.MarkDigestProcessed(ctx, []int64{3}, []int64{300}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	got, err := ms.FeedCandidates(ctx, "daily", now.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("feed candidates: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected processed message excluded from feed, got %d", len(got))
	}
}

func TestFeedCandidatesRequiresAlertOrInterestFlag(t *testing.T) {
	ms := newTestDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	neither := store.StoredMessage{ChatID: 4, MsgID: 400, SenderID: 1, MessageText: "x", Score: 0, DigestSchedule: "hourly", CreatedAt: now}
	if err := ms.Upsert(ctx, neither); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := ms.FeedCandidates(ctx, "hourly", now.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("feed candidates: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected a message with neither feed flag set to be excluded, got %d", len(got))
	}
}

// TestPurgeRetentionSweepsPerScenario mirrors spec.md's retention sweep
// worked example: non-alerted rows older than retention_days are deleted,
// alerted rows get a longer horizon via the multiplier. max_messages is 0
// (no cap) here; the cap is covered by the next test.
func TestPurgeRetentionSweepsPerScenario(t *testing.T) {
	ms := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	oldNonAlerted := store.StoredMessage{
		ChatID: 1, MsgID: 1, SenderID: 1, MessageText: "old", Score: 1,
		DigestSchedule: "none", CreatedAt: now.Add(-40 * 24 * time.Hour),
	}
	oldAlerted := store.StoredMessage{
		ChatID: 2, MsgID: 2, SenderID: 1, MessageText: "old alerted", Score: 1,
		Alerted: true, DigestSchedule: "none", CreatedAt: now.Add(-50 * 24 * time.Hour),
	}
	recentNonAlerted := store.StoredMessage{
		ChatID: 3, MsgID: 3, SenderID: 1, MessageText: "recent", Score: 1,
		DigestSchedule: "none", CreatedAt: now.Add(-time.Hour),
	}

	for _, m := range []store.StoredMessage{oldNonAlerted, oldAlerted, recentNonAlerted} {
		if err := ms.Upsert(ctx, m); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	cutoff := now.Add(-30 * 24 * time.Hour)       // retention_days=30
	alertedCutoff := now.Add(-60 * 24 * time.Hour) // alert_multiplier=2

	removed, err := ms.PurgeRetention(ctx, cutoff, alertedCutoff, 0)
	if err != nil {
		t.Fatalf("purge retention: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only the old non-alerted row removed (alerted row is within its longer horizon), got %d", removed)
	}
}

func TestPurgeRetentionEnforcesMaxMessagesEvictingOldestNonAlertedFirst(t *testing.T) {
	ms := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	alerted := store.StoredMessage{
		ChatID: 1, MsgID: 1, SenderID: 1, MessageText: "alerted", Score: 1,
		Alerted: true, DigestSchedule: "none", CreatedAt: now.Add(-2 * time.Hour),
	}
	oldest := store.StoredMessage{
		ChatID: 2, MsgID: 2, SenderID: 1, MessageText: "oldest", Score: 1,
		DigestSchedule: "none", CreatedAt: now.Add(-3 * time.Hour),
	}
	newest := store.StoredMessage{
		ChatID: 3, MsgID: 3, SenderID: 1, MessageText: "newest", Score: 1,
		DigestSchedule: "none", CreatedAt: now.Add(-time.Hour),
	}
	for _, m := range []store.StoredMessage{alerted, oldest, newest} {
		if err := ms.Upsert(ctx, m); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	// No row is old enough to be caught by either horizon; max_messages=2
	// must still evict the oldest non-alerted row (chat_id=2), never the
	// alerted one.
	removed, err := ms.PurgeRetention(ctx, now.Add(-365*24*time.Hour), now.Add(-365*24*time.Hour), 2)
	if err != nil {
		t.Fatalf("purge retention: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected exactly one row evicted to respect max_messages, got %d", removed)
	}
}
