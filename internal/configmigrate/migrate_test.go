package configmigrate

import (
	"testing"

	"github.com/redoracle/tgsentinel/internal/config"
)

func testConfigWithLegacyChannel() *config.Config {
	return &config.Config{
		Channels: []config.ChannelRule{
			{
				ID: 100, Name: "ops", Enabled: true,
				LegacyKeywordFields: config.LegacyKeywordFields{
					Keywords: map[string][]string{
						"security": {"cve-2024-1", "breach report"},
						"general":  {"vulnerability disclosure", "exploit chain"},
					},
				},
			},
			{
				ID: 200, Name: "random", Enabled: true,
				LegacyKeywordFields: config.LegacyKeywordFields{
					Keywords: map[string][]string{
						"general": {"lunch", "weather"},
					},
				},
			},
		},
	}
}

func TestAnalyzeBuildsSecurityProfileFromCategoryAndGeneralMatches(t *testing.T) {
	cfg := testConfigWithLegacyChannel()
	plan := Analyze(cfg)

	sec, ok := plan.Profiles["security"]
	if !ok {
		t.Fatalf("expected a security profile, got %v", plan.Profiles)
	}
	kws := sec.Keywords["general"]
	want := map[string]bool{"cve-2024-1": true, "breach report": true, "vulnerability disclosure": true, "exploit chain": true}
	if len(kws) != len(want) {
		t.Fatalf("security keywords = %v, want %v entries", kws, len(want))
	}
	for _, w := range kws {
		if !want[w] {
			t.Errorf("unexpected keyword %q in security profile", w)
		}
	}
}

func TestAnalyzeDoesNotBuildProfilesWithNoKeywords(t *testing.T) {
	cfg := &config.Config{}
	plan := Analyze(cfg)
	if len(plan.Profiles) != 0 {
		t.Errorf("expected no profiles from an empty config, got %v", plan.Profiles)
	}
}

func TestAnalyzeBindsChannelAboveOverlapThreshold(t *testing.T) {
	cfg := testConfigWithLegacyChannel()
	plan := Analyze(cfg)

	bound := plan.ChannelProfiles[100]
	found := false
	for _, id := range bound {
		if id == "security" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected channel 100 bound to security, got %v", bound)
	}
	if _, ok := plan.ChannelProfiles[200]; ok {
		t.Errorf("channel 200 has no overlap and should not be bound, got %v", plan.ChannelProfiles[200])
	}
}

func TestApplyMergesProfilesAndExtendsBindingsWithoutDroppingLegacy(t *testing.T) {
	cfg := testConfigWithLegacyChannel()
	cfg.Channels[0].Profiles = []string{"existing"}
	plan := Analyze(cfg)

	out := Apply(cfg, plan)

	if _, ok := out.Profiles["security"]; !ok {
		t.Fatalf("expected security profile merged into output config")
	}
	bound := out.Channels[0].Profiles
	wantIDs := map[string]bool{"existing": true, "security": true}
	for _, id := range bound {
		delete(wantIDs, id)
	}
	if len(wantIDs) != 0 {
		t.Errorf("expected bindings to include %v, got %v", []string{"existing", "security"}, bound)
	}
	if len(out.Channels[0].LegacyKeywordFields.Keywords) == 0 {
		t.Errorf("expected legacy keyword fields preserved, got none")
	}
	if len(cfg.Channels[0].Profiles) != 1 {
		t.Errorf("Apply must not mutate the input config; got %v", cfg.Channels[0].Profiles)
	}
}

func TestApplyPrefersExistingProfileOverSynthesized(t *testing.T) {
	cfg := testConfigWithLegacyChannel()
	cfg.Profiles = map[string]config.ProfileDefinition{
		"security": {ID: "security", Name: "Hand-authored security profile"},
	}
	plan := Analyze(cfg)
	out := Apply(cfg, plan)

	if out.Profiles["security"].Name != "Hand-authored security profile" {
		t.Errorf("expected existing profile to win, got %q", out.Profiles["security"].Name)
	}
}
