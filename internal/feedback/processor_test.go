package feedback

import (
	"context"
	"testing"

	"github.com/redoracle/tgsentinel/internal/tuner"
)

type fakeTuner struct {
	calls []struct {
		profileID string
		delta     float32
		reason    tuner.Reason
		count     int
	}
}

func (f *fakeTuner) ApplyThresholdAdjustment(ctx context.Context, profileID string, delta float32, reason tuner.Reason, feedbackCount int) (*tuner.Adjustment, error) {
	f.calls = append(f.calls, struct {
		profileID string
		delta     float32
		reason    tuner.Reason
		count     int
	}{profileID, delta, reason, feedbackCount})
	return &tuner.Adjustment{ProfileID: profileID, NewValue: 1}, nil
}

func TestVolumePolicyScalesAndSaturates(t *testing.T) {
	p := VolumePolicy{}

	if got := p.Delta(1); got != 0.02 {
		t.Fatalf("expected 0.02 for 1 report, got %v", got)
	}
	// Five float32 base steps: 0.02*5 rounds to 0.099999994, not float32(0.1).
	step := float32(0.02)
	if got := p.Delta(5); got != step*5 {
		t.Fatalf("expected 5 base steps (%v) for 5 reports, got %v", step*5, got)
	}
	if got := p.Delta(100); got != 0.2 {
		t.Fatalf("expected saturation at 0.2, got %v", got)
	}
}

func TestApplyTuningSkipsBelowThreshold(t *testing.T) {
	ft := &fakeTuner{}
	p := &Processor{Tuner: ft, Policy: VolumePolicy{}}

	p.applyTuning(context.Background(), map[string]int{"3000": minNegativeFeedbackForTuning - 1})

	if len(ft.calls) != 0 {
		t.Fatalf("expected no tuning calls below threshold, got %d", len(ft.calls))
	}
}

func TestApplyTuningFiresAtThreshold(t *testing.T) {
	ft := &fakeTuner{}
	p := &Processor{Tuner: ft, Policy: VolumePolicy{}}

	p.applyTuning(context.Background(), map[string]int{"3000": minNegativeFeedbackForTuning})

	if len(ft.calls) != 1 {
		t.Fatalf("expected 1 tuning call, got %d", len(ft.calls))
	}
	if ft.calls[0].profileID != "3000" {
		t.Fatalf("expected profile 3000, got %s", ft.calls[0].profileID)
	}
	if ft.calls[0].reason != tuner.ReasonNegativeFeedback {
		t.Fatalf("expected negative_feedback reason, got %s", ft.calls[0].reason)
	}
}

func TestApplyTuningNoopWithoutTunerOrPolicy(t *testing.T) {
	p := &Processor{}
	// Must not panic when Tuner/Policy are both nil.
	p.applyTuning(context.Background(), map[string]int{"3000": 10})
}
