// Package store defines the persistence-layer contracts (C3): messages,
// feedback, webhook deliveries, profile adjustments, batch history, and
// digest schedule state. Concrete implementations live in
// internal/store/sqlite (the default), internal/store/pg, and, for schedule
// state, internal/store/filestate.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GenNewID returns a fresh random identifier for audit rows.
func GenNewID() uuid.UUID {
	return uuid.New()
}

// StoredMessage is the canonical persisted row for one scored message,
// matching spec.md §3's messages table column-for-column. UPSERT on
// (chat_id, msg_id) OR-merges alerted/feed_alert_flag/feed_interest_flag
// rather than overwriting them.
type StoredMessage struct {
	ChatID int64
	MsgID  int64

	ChatTitle  string
	SenderID   int64
	SenderName string

	MessageText string
	ContentHash string // sha256 of the message text, for dedup/audit

	Score             float32 // combined pre_score
	KeywordScore      float32
	SemanticScores    map[string]float32 // profile_id -> cosine similarity
	SemanticType      string             // classification of the best semantic match, if any

	Triggers           []string            // flattened matched keyword terms
	TriggerAnnotations map[string][]string // category -> matched keywords
	MatchedProfiles    []string            // profile IDs that matched; sorted when merged with an existing row

	Alerted          bool // instant-alert channel already notified
	FeedAlertFlag    bool // matched an alert (keyword) profile
	FeedInterestFlag bool // matched an interest (semantic) profile and should feed the digest

	DigestSchedule  string // primary cadence, by SchedulePriority
	DigestProcessed bool   // cleared to true once a digest run has consumed it

	CreatedAt time.Time
}

// MessageStore persists and queries scored messages.
type MessageStore interface {
	// Upsert inserts or merges m by (chat_id, msg_id). Alerted/feed flags
	// OR-merge with any existing row; Score keeps the greater of the two
	// values; MatchedProfiles/Triggers union.
	Upsert(ctx context.Context, m StoredMessage) error

	// FeedCandidates returns not-yet-processed messages whose digest_schedule
	// equals schedule, created at or after since, with score >= minScore,
	// highest score first then most recent.
	FeedCandidates(ctx context.Context, schedule string, since time.Time, minScore float32) ([]StoredMessage, error)

	// MarkDigestProcessed sets digest_processed=true on the given messages
	// after a digest run has consumed them.
	MarkDigestProcessed(ctx context.Context, chatIDs, msgIDs []int64) error

	// PurgeRetention implements the full retention sweep (spec.md §4.3):
	// non-alerted rows older than cutoff and alerted rows older than
	// alertedCutoff are deleted, then, if maxMessages > 0 and the
	// remaining count still exceeds it, the oldest non-alerted rows are
	// evicted until it doesn't. Returns the total number of rows removed.
	PurgeRetention(ctx context.Context, cutoff, alertedCutoff time.Time, maxMessages int) (int64, error)
}

// Feedback is operator feedback on a scored message (thumbs up/down),
// fanned out to feedback_profiles for every profile that matched it.
type Feedback struct {
	ID        uuid.UUID
	ChatID    int64
	MsgID     int64
	Positive  bool
	Profiles  []string
	CreatedAt time.Time
}

// FeedbackStore persists feedback and its per-profile fan-out.
type FeedbackStore interface {
	// Record inserts the feedback row plus one feedback_profiles row per
	// matched profile (spec.md §4.6's fan-out for semantic re-centroiding).
	Record(ctx context.Context, fb Feedback) error

	// SamplesForProfile returns the (text, positive) feedback samples
	// recorded against profileID, most recent first, capped at limit.
	SamplesForProfile(ctx context.Context, profileID string, limit int) ([]FeedbackSample, error)

	// PendingProfiles returns profile IDs with unprocessed feedback,
	// for the batch feedback processor's recomputation queue.
	PendingProfiles(ctx context.Context) ([]string, error)
}

// FeedbackSample is one (text, label) pair used to recompute a profile's
// semantic centroid.
type FeedbackSample struct {
	Text     string
	Positive bool
}

// WebhookDelivery audits one outbound alert/digest delivery attempt.
type WebhookDelivery struct {
	ID         uuid.UUID
	ProfileID  string
	ChatID     int64
	Target     string // destination channel/user identifier
	Mode       string // dm | digest | both
	Status     string // sent | failed | retrying
	Error      string
	AttemptedAt time.Time
}

// DeliveryStore persists webhook/alert delivery attempts.
type DeliveryStore interface {
	Record(ctx context.Context, d WebhookDelivery) error
	RecentForProfile(ctx context.Context, profileID string, limit int) ([]WebhookDelivery, error)
}

// ProfileAdjustment audits one auto-tuning mutation (spec.md §4.7).
type ProfileAdjustment struct {
	ID         uuid.UUID
	ProfileID  string
	Field      string // "threshold" | "min_score"
	OldValue   float32
	NewValue   float32
	Reason     string
	AdjustedAt time.Time
}

// AdjustmentStore persists profile auto-tuning history.
type AdjustmentStore interface {
	Record(ctx context.Context, a ProfileAdjustment) error
	HistoryForProfile(ctx context.Context, profileID string, limit int) ([]ProfileAdjustment, error)
}

// BatchHistoryEntry audits one feedback-processor batch recomputation run
// (spec.md §4.7: "start/end, profile IDs, elapsed, trigger type").
type BatchHistoryEntry struct {
	ID          uuid.UUID
	ProfileIDs  []string
	SampleCount int
	StartedAt   time.Time
	FinishedAt  time.Time
	Trigger     string // "interval" | "queue_threshold"
	RanAt       time.Time
}

// BatchHistoryStore persists feedback-processor batch runs.
type BatchHistoryStore interface {
	Record(ctx context.Context, e BatchHistoryEntry) error
	Recent(ctx context.Context, limit int) ([]BatchHistoryEntry, error)
}

// ScheduleState is one cadence's persisted cursor (last run time, last
// execution status), atomically replaced on every run (spec.md §4.8).
type ScheduleState struct {
	ProfileID string
	Schedule  string
	LastRunAt time.Time
	Status    string // ok | failed | skipped
}

// ScheduleStateStore persists and reads digest cadence cursors.
type ScheduleStateStore interface {
	Get(ctx context.Context, profileID, schedule string) (*ScheduleState, error)
	Set(ctx context.Context, s ScheduleState) error
	All(ctx context.Context) ([]ScheduleState, error)
}
