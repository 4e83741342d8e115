package digest

import (
	"testing"

	"github.com/redoracle/tgsentinel/internal/config"
)

func groupWith(mode config.DeliveryMode, target string, minScore float32, topN int, profiles ...string) Group {
	return Group{
		Schedule:   config.ScheduleConfig{Mode: mode, TargetChannel: target},
		Digest:     config.ProfileDigestConfig{MinScore: minScore, TopN: topN},
		ProfileIDs: profiles,
	}
}

func TestAggregateMinScoreTakesLowest(t *testing.T) {
	agg := Aggregate([]Group{
		groupWith(config.ModeDM, "", 2.0, 5, "a"),
		groupWith(config.ModeDM, "", 0.5, 5, "b"),
	}, "")
	if agg.MinScore != 0.5 {
		t.Errorf("expected min_score to take the lowest contributing value, got %v", agg.MinScore)
	}
}

func TestAggregateTopNTakesHighest(t *testing.T) {
	agg := Aggregate([]Group{
		groupWith(config.ModeDM, "", 0, 5, "a"),
		groupWith(config.ModeDM, "", 0, 20, "b"),
	}, "")
	if agg.TopN != 20 {
		t.Errorf("expected top_n to take the highest contributing value, got %v", agg.TopN)
	}
}

func TestAggregateUnanimousModeWins(t *testing.T) {
	agg := Aggregate([]Group{
		groupWith(config.ModeDigest, "ops", 0, 0, "a"),
		groupWith(config.ModeDigest, "ops", 0, 0, "b"),
	}, "")
	if agg.Mode != config.ModeDigest {
		t.Errorf("expected unanimous mode to win, got %v", agg.Mode)
	}
	if agg.Target != "ops" {
		t.Errorf("expected unanimous target to win, got %v", agg.Target)
	}
}

func TestAggregateDisagreementFallsBackToBothOrDM(t *testing.T) {
	disagree := []Group{
		groupWith(config.ModeDM, "", 0, 0, "a"),
		groupWith(config.ModeDigest, "ops", 0, 0, "b"),
	}

	if agg := Aggregate(disagree, "global-channel"); agg.Mode != config.ModeBoth {
		t.Errorf("expected disagreement with a global target channel to fall back to both, got %v", agg.Mode)
	}
	if agg := Aggregate(disagree, ""); agg.Mode != config.ModeDM {
		t.Errorf("expected disagreement with no global target channel to fall back to dm, got %v", agg.Mode)
	}
}

func TestAggregateTargetDisagreementPicksLexicographicallyFirst(t *testing.T) {
	agg := Aggregate([]Group{
		groupWith(config.ModeDigest, "zeta", 0, 0, "a"),
		groupWith(config.ModeDigest, "alpha", 0, 0, "b"),
	}, "")
	if agg.Target != "alpha" {
		t.Errorf("expected lexicographically first target, got %v", agg.Target)
	}
}

func TestAggregateUnionsProfileIDs(t *testing.T) {
	agg := Aggregate([]Group{
		groupWith(config.ModeDM, "", 0, 0, "a", "b"),
		groupWith(config.ModeDM, "", 0, 0, "b", "c"),
	}, "")
	if len(agg.ProfileIDs) != 3 {
		t.Errorf("expected union of profile IDs across groups, got %v", agg.ProfileIDs)
	}
}
