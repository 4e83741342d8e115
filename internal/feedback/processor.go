// Package feedback implements the batch feedback processor described in
// spec.md §4.7: an HTTP-boundary entrypoint that records operator
// thumbs-up/down feedback, and a background loop that periodically
// invalidates the semantic evaluator's cached centroids for every profile
// touched by new feedback.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redoracle/tgsentinel/internal/coord"
	"github.com/redoracle/tgsentinel/internal/store"
	"github.com/redoracle/tgsentinel/internal/tuner"
)

const (
	defaultWakeInterval  = 10 * time.Minute
	defaultQueueThreshold = 5
)

// Invalidator drops a profile's cached semantic centroid, forcing
// recomputation on next use. Implemented by *semantic.Evaluator; named here
// so this package doesn't depend on the scoring package.
type Invalidator interface {
	InvalidateProfile(profileID string)
}

// ThresholdTuner applies a bounded, audited threshold adjustment to a
// profile (spec.md §4.7 "Auto-tuning"). Implemented by *tuner.Tuner.
type ThresholdTuner interface {
	ApplyThresholdAdjustment(ctx context.Context, profileID string, delta float32, reason tuner.Reason, feedbackCount int) (*tuner.Adjustment, error)
}

// Policy decides how large a threshold adjustment a run of negative
// feedback earns. The default implementation scales the delta by feedback
// volume so one stray thumbs-down can't move a threshold as much as a
// sustained run of them (SPEC_FULL.md §3's "richer tuning heuristics"
// supplement to spec.md §4.7's plain "on sufficient negative feedback").
type Policy interface {
	Delta(negativeCount int) float32
}

// VolumePolicy is Policy's default implementation: a fixed step per
// negative feedback event, saturating at MaxStep so a single noisy batch
// can't jump straight to the cap.
type VolumePolicy struct {
	BaseStep float32 // per-feedback increment; defaults to 0.02
	MaxStep  float32 // ceiling on one adjustment's delta; defaults to 0.2
}

func (p VolumePolicy) Delta(negativeCount int) float32 {
	step := p.BaseStep
	if step <= 0 {
		step = 0.02
	}
	maxStep := p.MaxStep
	if maxStep <= 0 {
		maxStep = 0.2
	}
	d := step * float32(negativeCount)
	if d > maxStep {
		d = maxStep
	}
	return d
}

// minNegativeFeedbackForTuning is the "sufficient negative feedback"
// threshold spec.md §4.7 leaves unspecified: a batch needs at least this
// many negative reports against a profile before a tuning adjustment runs,
// so a single thumbs-down doesn't move a threshold.
const minNegativeFeedbackForTuning = 3

// Processor owns the pending-recomputation queue and the background batch
// loop. The queue is a set (no duplicate profile IDs), mutated under mu and
// persisted to the coordination store after every mutation so it survives
// a restart (spec.md §5: "BatchFeedbackProcessor.queue... persisted to the
// coordination store after every mutation").
type Processor struct {
	Feedback    store.FeedbackStore
	History     store.BatchHistoryStore
	Coord       *coord.Store
	Invalidator Invalidator
	Tuner       ThresholdTuner // optional; nil disables auto-tuning
	Policy      Policy

	WakeInterval   time.Duration
	QueueThreshold int

	mu       sync.Mutex
	pending  map[string]struct{}
	negative map[string]int
	wake     chan struct{}
}

// FeedbackPayload is the HTTP boundary's feedback event (spec.md §4.7).
type FeedbackPayload struct {
	ChatID       int64
	MsgID        int64
	Label        bool // true = positive/thumbs-up
	SemanticType string
	ProfileIDs   []string
}

// NewProcessor builds a Processor. Call LoadQueue once at startup to
// restore any queue persisted before a restart. Pass a nil tuner/policy to
// disable auto-tuning (centroid recomputation still runs).
func NewProcessor(fb store.FeedbackStore, history store.BatchHistoryStore, c *coord.Store, inv Invalidator, tn ThresholdTuner, policy Policy) *Processor {
	return &Processor{
		Feedback:       fb,
		History:        history,
		Coord:          c,
		Invalidator:    inv,
		Tuner:          tn,
		Policy:         policy,
		WakeInterval:   defaultWakeInterval,
		QueueThreshold: defaultQueueThreshold,
		pending:        make(map[string]struct{}),
		negative:       make(map[string]int),
		wake:           make(chan struct{}, 1),
	}
}

// LoadQueue restores the pending-recomputation queue from the coordination
// store, for restart safety.
func (p *Processor) LoadQueue(ctx context.Context) error {
	ids, err := p.Coord.BatchQueue(ctx)
	if err != nil {
		return fmt.Errorf("feedback: load queue: %w", err)
	}
	p.mu.Lock()
	for _, id := range ids {
		p.pending[id] = struct{}{}
	}
	p.mu.Unlock()
	return nil
}

// HandleFeedback is the HTTP-boundary entrypoint (spec.md §4.7): it records
// the feedback row (fanned out to feedback_profiles by the store) and
// enqueues every matched profile for centroid recomputation.
func (p *Processor) HandleFeedback(ctx context.Context, payload FeedbackPayload) error {
	fb := store.Feedback{
		ChatID:    payload.ChatID,
		MsgID:     payload.MsgID,
		Positive:  payload.Label,
		Profiles:  payload.ProfileIDs,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.Feedback.Record(ctx, fb); err != nil {
		return fmt.Errorf("feedback: record: %w", err)
	}
	return p.enqueue(ctx, payload.ProfileIDs, !payload.Label)
}

// enqueue adds profileIDs to the pending set, persists the queue, and wakes
// the batch loop immediately if the queue has reached QueueThreshold.
// negative marks this event as a thumbs-down, counted toward auto-tuning.
func (p *Processor) enqueue(ctx context.Context, profileIDs []string, negative bool) error {
	p.mu.Lock()
	for _, id := range profileIDs {
		p.pending[id] = struct{}{}
		if negative {
			p.negative[id]++
		}
	}
	snapshot := p.snapshotLocked()
	size := len(p.pending)
	p.mu.Unlock()

	if err := p.Coord.SetBatchQueue(ctx, snapshot); err != nil {
		return fmt.Errorf("feedback: persist queue: %w", err)
	}

	threshold := p.QueueThreshold
	if threshold <= 0 {
		threshold = defaultQueueThreshold
	}
	if size >= threshold {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

func (p *Processor) snapshotLocked() []string {
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	return ids
}

// Run drives the background batch loop until ctx is cancelled: wake every
// WakeInterval, or immediately when enqueue crosses QueueThreshold.
func (p *Processor) Run(ctx context.Context) error {
	interval := p.WakeInterval
	if interval <= 0 {
		interval = defaultWakeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.processBatch(ctx, "interval"); err != nil {
				slog.Error("feedback: batch processing failed", "error", err)
			}
		case <-p.wake:
			if err := p.processBatch(ctx, "queue_threshold"); err != nil {
				slog.Error("feedback: batch processing failed", "error", err)
			}
		}
	}
}

// processBatch drains the pending queue, invalidates every touched
// profile's cached centroid, and records the run in batch_history.
func (p *Processor) processBatch(ctx context.Context, trigger string) error {
	started := time.Now().UTC()

	p.mu.Lock()
	ids := p.snapshotLocked()
	negatives := p.negative
	p.pending = make(map[string]struct{})
	p.negative = make(map[string]int)
	p.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	if err := p.Coord.SetBatchQueue(ctx, nil); err != nil {
		slog.Error("feedback: clear persisted queue", "error", err)
	}

	for _, id := range ids {
		p.Invalidator.InvalidateProfile(id)
	}

	p.applyTuning(ctx, negatives)

	finished := time.Now().UTC()
	if err := p.Coord.SetLastBatchTime(ctx, finished); err != nil {
		slog.Error("feedback: set last batch time", "error", err)
	}

	entry := store.BatchHistoryEntry{
		ProfileIDs:  ids,
		SampleCount: len(ids),
		StartedAt:   started,
		FinishedAt:  finished,
		Trigger:     trigger,
		RanAt:       finished,
	}
	if err := p.History.Record(ctx, entry); err != nil {
		return fmt.Errorf("feedback: record batch history: %w", err)
	}

	slog.Info("feedback: batch recomputed", "profiles", len(ids), "trigger", trigger)
	return nil
}

// applyTuning raises the threshold of every profile whose negative feedback
// count in this batch meets minNegativeFeedbackForTuning (spec.md §4.7
// "Auto-tuning": "On sufficient negative feedback for a semantic profile,
// a tuner may raise the profile's threshold"). A failed adjustment is
// logged and skipped rather than aborting the rest of the batch.
func (p *Processor) applyTuning(ctx context.Context, negatives map[string]int) {
	if p.Tuner == nil || p.Policy == nil {
		return
	}
	for profileID, count := range negatives {
		if count < minNegativeFeedbackForTuning {
			continue
		}
		delta := p.Policy.Delta(count)
		if _, err := p.Tuner.ApplyThresholdAdjustment(ctx, profileID, delta, tuner.ReasonNegativeFeedback, count); err != nil {
			slog.Error("feedback: auto-tune adjustment failed", "profile", profileID, "error", err)
		}
	}
}
