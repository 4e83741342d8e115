// Package configmigrate implements the legacy-keyword-to-bound-profile
// migration (SPEC_FULL.md §3's "tools/migrate_profiles.py" supplement): it
// groups the flat per-entity keyword lists a pre-C1 config carries in
// config.LegacyKeywordFields into a handful of named, reusable profiles,
// then proposes channel/user bindings to those profiles by keyword overlap.
package configmigrate

import (
	"sort"
	"strings"

	"github.com/redoracle/tgsentinel/internal/config"
)

// profileSpec names one synthesized profile's source category and the extra
// substring terms pulled out of the catch-all "general" bucket, mirroring
// the original migration tool's per-profile term sets.
type profileSpec struct {
	id          string
	displayName string
	fromCategory string // "" if this profile draws only from general matches
	extraTerms  []string
	weights     map[string]float32
}

var defaultWeights = map[string]float32{
	"keywords":  0.8,
	"vip":       1.0,
	"reactions": 0.5,
	"replies":   0.5,
}

var profileSpecs = []profileSpec{
	{
		id: "security", displayName: "Security", fromCategory: "security",
		extraTerms: []string{"vulnerability", "exploit", "cve", "patch", "breach", "attack"},
		weights:    weightsWith(map[string]float32{"security": 1.5, "urgency": 1.8}),
	},
	{
		id: "releases", displayName: "Releases", fromCategory: "release",
		extraTerms: []string{"release", "update", "version", "changelog", "upgrade"},
		weights:    weightsWith(map[string]float32{"release": 1.0}),
	},
	{
		id: "opportunities", displayName: "Opportunities", fromCategory: "opportunity",
		extraTerms: []string{"airdrop", "grant", "funding", "opportunity", "token"},
		weights:    weightsWith(map[string]float32{"opportunity": 0.8, "decision": 1.0}),
	},
	{
		id: "governance", displayName: "Governance", fromCategory: "decision",
		extraTerms: []string{"proposal", "vote", "governance", "ballot"},
		weights:    weightsWith(map[string]float32{"decision": 1.2, "action": 1.0}),
	},
	{
		id: "technical", displayName: "Technical", fromCategory: "",
		extraTerms: []string{"mainnet", "testnet", "hard fork", "api", "sdk", "upgrade"},
		weights:    weightsWith(nil),
	},
	{
		id: "risk", displayName: "Risk", fromCategory: "risk",
		extraTerms: []string{"incident", "outage", "downtime", "issue", "problem"},
		weights:    weightsWith(map[string]float32{"risk": 1.5, "urgency": 1.8}),
	},
}

func weightsWith(extra map[string]float32) map[string]float32 {
	out := make(map[string]float32, len(defaultWeights)+len(extra))
	for k, v := range defaultWeights {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// minKeywordOverlap is the number of shared keywords a channel/user's own
// legacy list must have with a synthesized profile before it gets bound,
// matching the original tool's "at least 2 keywords from this profile".
const minKeywordOverlap = 2

// Plan is the proposed outcome of a migration analysis: new profiles to add
// and the channel/user bindings they'd receive. Nothing in Plan is applied
// until Apply is called.
type Plan struct {
	Profiles        map[string]config.ProfileDefinition
	ChannelProfiles map[int64][]string
	UserProfiles    map[int64][]string
}

// Analyze scans every channel/user's legacy keyword fields, groups them into
// the fixed profile set, and proposes bindings. It never mutates cfg.
func Analyze(cfg *config.Config) Plan {
	general := map[string]struct{}{}
	bySpec := make(map[string]map[string]struct{}, len(profileSpecs))
	for _, spec := range profileSpecs {
		bySpec[spec.id] = map[string]struct{}{}
	}

	legacyKeywordSets := collectAllLegacyKeywords(cfg)
	for _, kws := range legacyKeywordSets {
		for cat, words := range kws {
			if cat == "general" {
				for _, w := range words {
					general[w] = struct{}{}
				}
			}
		}
	}

	for _, spec := range profileSpecs {
		dest := bySpec[spec.id]
		if spec.fromCategory != "" {
			for _, kws := range legacyKeywordSets {
				for _, w := range kws[spec.fromCategory] {
					dest[w] = struct{}{}
				}
			}
		}
		for w := range general {
			if matchesAnyTerm(w, spec.extraTerms) {
				dest[w] = struct{}{}
			}
		}
	}

	profiles := make(map[string]config.ProfileDefinition, len(profileSpecs))
	for _, spec := range profileSpecs {
		kws := bySpec[spec.id]
		if len(kws) == 0 {
			continue
		}
		profiles[spec.id] = config.ProfileDefinition{
			ID:               spec.id,
			Name:             spec.displayName,
			Enabled:          true,
			Keywords:         map[string][]string{"general": sortedSet(kws)},
			ScoringWeights:   spec.weights,
			DetectCodes:      true,
			DetectDocuments:  true,
			PrioritizePinned: true,
		}
	}

	plan := Plan{
		Profiles:        profiles,
		ChannelProfiles: make(map[int64][]string),
		UserProfiles:    make(map[int64][]string),
	}
	for _, ch := range cfg.Channels {
		own := flattenKeywords(ch.LegacyKeywordFields.Keywords)
		if bound := bindByOverlap(own, bySpec); len(bound) > 0 {
			plan.ChannelProfiles[ch.ID] = bound
		}
	}
	for _, u := range cfg.Users {
		own := flattenKeywords(u.LegacyKeywordFields.Keywords)
		if bound := bindByOverlap(own, bySpec); len(bound) > 0 {
			plan.UserProfiles[u.ID] = bound
		}
	}
	return plan
}

// Apply returns a copy of cfg with plan's profiles merged in (existing IDs
// win) and channel/user Profiles lists extended with the proposed bindings,
// deduplicated. Legacy keyword fields are left untouched, matching the
// original tool's "don't delete yet, keep for backward compatibility".
func Apply(cfg *config.Config, plan Plan) *config.Config {
	out := *cfg

	out.Profiles = make(map[string]config.ProfileDefinition, len(cfg.Profiles)+len(plan.Profiles))
	for id, p := range cfg.Profiles {
		out.Profiles[id] = p
	}
	for id, p := range plan.Profiles {
		if _, exists := out.Profiles[id]; exists {
			continue
		}
		out.Profiles[id] = p
	}

	out.Channels = make([]config.ChannelRule, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		ch.Profiles = unionStrings(ch.Profiles, plan.ChannelProfiles[ch.ID])
		out.Channels[i] = ch
	}

	out.Users = make([]config.MonitoredUser, len(cfg.Users))
	for i, u := range cfg.Users {
		u.Profiles = unionStrings(u.Profiles, plan.UserProfiles[u.ID])
		out.Users[i] = u
	}

	return &out
}

func collectAllLegacyKeywords(cfg *config.Config) []map[string][]string {
	out := make([]map[string][]string, 0, len(cfg.Channels)+len(cfg.Users))
	for _, ch := range cfg.Channels {
		out = append(out, ch.LegacyKeywordFields.Keywords)
	}
	for _, u := range cfg.Users {
		out = append(out, u.LegacyKeywordFields.Keywords)
	}
	return out
}

func flattenKeywords(m map[string][]string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, words := range m {
		for _, w := range words {
			out[w] = struct{}{}
		}
	}
	return out
}

func bindByOverlap(own map[string]struct{}, bySpec map[string]map[string]struct{}) []string {
	var bound []string
	for _, spec := range profileSpecs {
		overlap := 0
		for w := range own {
			if _, ok := bySpec[spec.id][w]; ok {
				overlap++
			}
		}
		if overlap >= minKeywordOverlap {
			bound = append(bound, spec.id)
		}
	}
	sort.Strings(bound)
	return bound
}

func matchesAnyTerm(keyword string, terms []string) bool {
	lower := strings.ToLower(keyword)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for w := range m {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
