// Package tuner implements the auto-tuning policy described in spec.md
// §4.7 "Auto-tuning": bounded, monotonic threshold increases applied to a
// scoring profile in response to aggregated negative feedback, persisted
// atomically to the config document and audited to profile_adjustments.
package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/store"
)

// Safety caps. A semantic (interest) profile's threshold lives on 0..1; a
// heuristic (alert) profile's min_score lives on 0..10.
const (
	MaxThresholdInterest float32 = 0.95
	MaxThresholdAlert    float32 = 10.0
)

// Reason labels why an adjustment was applied.
type Reason string

const (
	ReasonNegativeFeedback Reason = "negative_feedback"
	ReasonManual           Reason = "manual"
	ReasonAutoTune         Reason = "auto_tune"
)

// Adjustment is the result of a successful threshold mutation.
type Adjustment struct {
	ProfileID     string
	Field         string // "threshold" | "min_score"
	OldValue      float32
	NewValue      float32
	Reason        Reason
	FeedbackCount int
}

// Tuner applies threshold adjustments to profiles in the config document.
// Mutations are serialized through mu so two concurrent adjustments to
// different profiles can't race on the same read-modify-write of the
// config document.
type Tuner struct {
	cfg     *config.Store
	history store.AdjustmentStore

	mu sync.Mutex
}

func New(cfg *config.Store, history store.AdjustmentStore) *Tuner {
	return &Tuner{cfg: cfg, history: history}
}

// ApplyThresholdAdjustment raises profileID's threshold (semantic profiles)
// or min_score (heuristic/alert profiles) by delta, capped at
// MaxThresholdInterest/MaxThresholdAlert and never allowed below zero.
// Returns (nil, nil) if the capped result equals the current value — no
// config write or audit row is produced for a no-op.
func (t *Tuner) ApplyThresholdAdjustment(ctx context.Context, profileID string, delta float32, reason Reason, feedbackCount int) (*Adjustment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := t.cfg.Current()
	profile, ok := live.Profiles[profileID]
	if !ok {
		return nil, fmt.Errorf("tuner: profile %s not found", profileID)
	}

	field := "min_score"
	oldValue := profile.MinScore
	ceiling := MaxThresholdAlert
	if profile.IsSemantic() {
		field = "threshold"
		oldValue = profile.Threshold
		ceiling = MaxThresholdInterest
	}

	newValue := clamp(oldValue+delta, 0, ceiling)
	newValue = roundTo2(newValue)

	if newValue == oldValue {
		slog.Info("tuner: no adjustment needed", "profile", profileID, "field", field, "value", oldValue)
		return nil, nil
	}

	if field == "threshold" {
		profile.Threshold = newValue
	} else {
		profile.MinScore = newValue
	}

	newCfg := *live
	newProfiles := make(map[string]config.ProfileDefinition, len(live.Profiles))
	for id, p := range live.Profiles {
		newProfiles[id] = p
	}
	newProfiles[profileID] = profile
	newCfg.Profiles = newProfiles

	if err := t.cfg.SaveAtomic(&newCfg); err != nil {
		return nil, fmt.Errorf("tuner: save config: %w", err)
	}

	adj := store.ProfileAdjustment{
		ProfileID:  profileID,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
		Reason:     string(reason),
		AdjustedAt: time.Now().UTC(),
	}
	if err := t.history.Record(ctx, adj); err != nil {
		return nil, fmt.Errorf("tuner: record adjustment: %w", err)
	}

	slog.Info("tuner: adjusted profile threshold",
		"profile", profileID, "field", field, "old", oldValue, "new", newValue,
		"delta", newValue-oldValue, "reason", reason, "feedback_count", feedbackCount)

	return &Adjustment{
		ProfileID:     profileID,
		Field:         field,
		OldValue:      oldValue,
		NewValue:      newValue,
		Reason:        reason,
		FeedbackCount: feedbackCount,
	}, nil
}

// History returns the most recent adjustments applied to a profile, most
// recent first.
func (t *Tuner) History(ctx context.Context, profileID string, limit int) ([]store.ProfileAdjustment, error) {
	rows, err := t.history.HistoryForProfile(ctx, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("tuner: history for profile %s: %w", profileID, err)
	}
	return rows, nil
}

func clamp(v, min, max float32) float32 {
	if v > max {
		v = max
	}
	if v < min {
		v = min
	}
	return v
}

func roundTo2(v float32) float32 {
	return float32(math.Round(float64(v)*100) / 100)
}
