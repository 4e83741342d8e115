package resolver

import (
	"testing"

	"github.com/redoracle/tgsentinel/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Profiles: map[string]config.ProfileDefinition{
			"global-security": {
				ID:      "global-security",
				Enabled: true,
				Keywords: map[string][]string{
					"security": {"breach", "cve"},
				},
				ScoringWeights: map[string]float32{"security": 2.0},
				VIPSenders:     []int64{1},
			},
			"eng-urgent": {
				ID:      "eng-urgent",
				Enabled: true,
				Channels: []int64{100},
				Keywords: map[string][]string{
					"urgency": {"asap", "now"},
				},
				ScoringWeights: map[string]float32{"urgency": 1.5},
			},
			"disabled-profile": {
				ID:      "disabled-profile",
				Enabled: false,
				Channels: []int64{100},
			},
		},
	}
}

func TestResolveChannelMergesAutoAndExplicit(t *testing.T) {
	cfg := testConfig()
	ch := config.ChannelRule{ID: 100, Enabled: true, Profiles: []string{"eng-urgent"}}

	rp := ResolveChannel(cfg, ch)

	if len(rp.Keywords["security"]) != 2 {
		t.Fatalf("expected global-security auto-bound keywords, got %v", rp.Keywords)
	}
	if len(rp.Keywords["urgency"]) != 2 {
		t.Fatalf("expected eng-urgent keywords, got %v", rp.Keywords)
	}
	if !rp.IsVIP(1) {
		t.Fatalf("expected VIP sender 1 to be merged in")
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	cfg := testConfig()
	ch := config.ChannelRule{ID: 100, Enabled: true}

	first := ResolveChannel(cfg, ch)
	for i := 0; i < 20; i++ {
		again := ResolveChannel(cfg, ch)
		if len(again.MatchedProfileIDs) != len(first.MatchedProfileIDs) {
			t.Fatalf("non-deterministic matched profile count: %v vs %v", first.MatchedProfileIDs, again.MatchedProfileIDs)
		}
		for j, id := range first.MatchedProfileIDs {
			if again.MatchedProfileIDs[j] != id {
				t.Fatalf("non-deterministic matched profile order: %v vs %v", first.MatchedProfileIDs, again.MatchedProfileIDs)
			}
		}
	}
}

func TestResolveSkipsUnknownBoundProfile(t *testing.T) {
	cfg := testConfig()
	ch := config.ChannelRule{ID: 200, Enabled: true, Profiles: []string{"does-not-exist"}}

	rp := ResolveChannel(cfg, ch)
	if len(rp.MatchedProfileIDs) != 1 {
		t.Fatalf("expected the unknown id skipped and only the auto-bound global-security profile matched, got %v", rp.MatchedProfileIDs)
	}
}

func TestResolveOverridesExtendKeywords(t *testing.T) {
	cfg := testConfig()
	ch := config.ChannelRule{
		ID:      300,
		Enabled: true,
		Profiles: []string{"eng-urgent"},
		Overrides: config.ChannelOverrides{
			KeywordsExtra: map[string][]string{"urgency": {"immediately"}},
		},
	}

	rp := ResolveChannel(cfg, ch)
	found := false
	for _, kw := range rp.Keywords["urgency"] {
		if kw == "immediately" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected override keyword merged in, got %v", rp.Keywords["urgency"])
	}
}

func TestResolveDigestPrecedence(t *testing.T) {
	cfg := testConfig()
	profileDigest := config.ProfileDigestConfig{TopN: 5}
	p := cfg.Profiles["eng-urgent"]
	p.Digest = &profileDigest
	cfg.Profiles["eng-urgent"] = p

	chNoOverride := config.ChannelRule{ID: 100, Enabled: true, Profiles: []string{"eng-urgent"}}
	rp := ResolveChannel(cfg, chNoOverride)
	if rp.Digest == nil || rp.Digest.TopN != 5 {
		t.Fatalf("expected profile digest fallback, got %+v", rp.Digest)
	}

	entityDigest := config.ProfileDigestConfig{TopN: 99}
	chWithEntity := config.ChannelRule{ID: 100, Enabled: true, Profiles: []string{"eng-urgent"}, Digest: &entityDigest}
	rp2 := ResolveChannel(cfg, chWithEntity)
	if rp2.Digest == nil || rp2.Digest.TopN != 99 {
		t.Fatalf("expected entity-level digest to take precedence, got %+v", rp2.Digest)
	}
}

func TestResolveWhenGatesProfileContribution(t *testing.T) {
	cfg := testConfig()
	p := cfg.Profiles["eng-urgent"]
	p.When = "entity_id == 100"
	cfg.Profiles["eng-urgent"] = p

	matching := config.ChannelRule{ID: 100, Enabled: true, Profiles: []string{"eng-urgent"}}
	rp := ResolveChannel(cfg, matching)
	if len(rp.Keywords["urgency"]) == 0 {
		t.Fatalf("expected eng-urgent keywords when its `when` predicate matches the entity, got %v", rp.Keywords)
	}

	p.When = "entity_id == 999"
	cfg.Profiles["eng-urgent"] = p
	rp2 := ResolveChannel(cfg, matching)
	if len(rp2.Keywords["urgency"]) != 0 {
		t.Fatalf("expected eng-urgent contribution gated out by a non-matching `when`, got %v", rp2.Keywords)
	}
}

func TestResolveWhenGatesOverrideBlock(t *testing.T) {
	cfg := testConfig()
	ch := config.ChannelRule{
		ID: 100, Enabled: true, Profiles: []string{"eng-urgent"},
		Overrides: config.ChannelOverrides{
			KeywordsExtra: map[string][]string{"urgency": {"immediately"}},
			When:          "entity_id == 999",
		},
	}

	rp := ResolveChannel(cfg, ch)
	for _, kw := range rp.Keywords["urgency"] {
		if kw == "immediately" {
			t.Fatalf("expected override gated out by a non-matching `when`, got %v", rp.Keywords["urgency"])
		}
	}
}

func TestResolveWhenInvalidExpressionFailsOpen(t *testing.T) {
	cfg := testConfig()
	p := cfg.Profiles["eng-urgent"]
	p.When = "not( valid cel"
	cfg.Profiles["eng-urgent"] = p

	ch := config.ChannelRule{ID: 100, Enabled: true, Profiles: []string{"eng-urgent"}}
	rp := ResolveChannel(cfg, ch)
	if len(rp.Keywords["urgency"]) == 0 {
		t.Fatalf("expected an unparseable `when` expression to fail open (profile still applied), got %v", rp.Keywords)
	}
}
