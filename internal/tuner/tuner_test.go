package tuner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/store"
)

type fakeAdjustmentStore struct {
	recorded []store.ProfileAdjustment
}

func (f *fakeAdjustmentStore) Record(ctx context.Context, a store.ProfileAdjustment) error {
	f.recorded = append(f.recorded, a)
	return nil
}

func (f *fakeAdjustmentStore) HistoryForProfile(ctx context.Context, profileID string, limit int) ([]store.ProfileAdjustment, error) {
	var out []store.ProfileAdjustment
	for i := len(f.recorded) - 1; i >= 0 && len(out) < limit; i-- {
		if f.recorded[i].ProfileID == profileID {
			out = append(out, f.recorded[i])
		}
	}
	return out, nil
}

func newTestStore(t *testing.T, yamlDoc string) *config.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	s, err := config.NewStore(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return s
}

const interestDoc = `
profiles:
  "3000":
    id: "3000"
    name: "interest profile"
    enabled: true
    threshold: 0.80
    positive_samples: ["foo"]
`

const alertDoc = `
profiles:
  "4000":
    id: "4000"
    name: "alert profile"
    enabled: true
    min_score: 9.5
`

func TestApplyThresholdAdjustmentRaisesAndCaps(t *testing.T) {
	cfg := newTestStore(t, interestDoc)
	hist := &fakeAdjustmentStore{}
	tn := New(cfg, hist)

	adj, err := tn.ApplyThresholdAdjustment(context.Background(), "3000", 0.1, ReasonNegativeFeedback, 1)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if adj == nil {
		t.Fatal("expected adjustment, got nil")
	}
	if adj.Field != "threshold" {
		t.Fatalf("expected threshold field, got %s", adj.Field)
	}
	if adj.NewValue != 0.9 {
		t.Fatalf("expected 0.9, got %v", adj.NewValue)
	}
	if got := cfg.Current().Profiles["3000"].Threshold; got != 0.9 {
		t.Fatalf("config not updated: %v", got)
	}
	if len(hist.recorded) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(hist.recorded))
	}

	// A bump that would exceed the cap is clamped to MaxThresholdInterest,
	// never allowed to overshoot regardless of delta size.
	adj2, err := tn.ApplyThresholdAdjustment(context.Background(), "3000", 0.5, ReasonNegativeFeedback, 1)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if adj2.NewValue != MaxThresholdInterest {
		t.Fatalf("expected cap %v, got %v", MaxThresholdInterest, adj2.NewValue)
	}
}

func TestApplyThresholdAdjustmentAlertProfileUsesMinScore(t *testing.T) {
	cfg := newTestStore(t, alertDoc)
	hist := &fakeAdjustmentStore{}
	tn := New(cfg, hist)

	adj, err := tn.ApplyThresholdAdjustment(context.Background(), "4000", 1.0, ReasonNegativeFeedback, 3)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if adj.Field != "min_score" {
		t.Fatalf("expected min_score field, got %s", adj.Field)
	}
	if adj.NewValue != MaxThresholdAlert {
		t.Fatalf("expected cap %v, got %v", MaxThresholdAlert, adj.NewValue)
	}
}

func TestApplyThresholdAdjustmentNoopWhenAlreadyAtValue(t *testing.T) {
	cfg := newTestStore(t, interestDoc)
	hist := &fakeAdjustmentStore{}
	tn := New(cfg, hist)

	adj, err := tn.ApplyThresholdAdjustment(context.Background(), "3000", 0, ReasonManual, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if adj != nil {
		t.Fatalf("expected no-op nil adjustment, got %+v", adj)
	}
	if len(hist.recorded) != 0 {
		t.Fatalf("expected no audit row for no-op, got %d", len(hist.recorded))
	}
}

func TestApplyThresholdAdjustmentUnknownProfileErrors(t *testing.T) {
	cfg := newTestStore(t, interestDoc)
	hist := &fakeAdjustmentStore{}
	tn := New(cfg, hist)

	if _, err := tn.ApplyThresholdAdjustment(context.Background(), "nope", 0.1, ReasonManual, 0); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestApplyThresholdAdjustmentNeverGoesNegative(t *testing.T) {
	cfg := newTestStore(t, interestDoc)
	hist := &fakeAdjustmentStore{}
	tn := New(cfg, hist)

	adj, err := tn.ApplyThresholdAdjustment(context.Background(), "3000", -5.0, ReasonManual, 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if adj.NewValue < 0 {
		t.Fatalf("threshold went negative: %v", adj.NewValue)
	}
	if adj.NewValue != 0 {
		t.Fatalf("expected floor of 0, got %v", adj.NewValue)
	}
}
