// Package resolver implements the profile resolver (C2): it merges bound
// profiles, legacy fields, and overrides into a per-entity ResolvedProfile.
package resolver

import (
	"log/slog"
	"sort"

	"github.com/redoracle/tgsentinel/internal/config"
)

// ResolvedProfile is the derived, per-entity merged view the worker and
// digest engine consult. It is never persisted.
type ResolvedProfile struct {
	EntityID   int64
	IsChannel  bool

	Keywords map[string][]string // category -> sorted, deduplicated keywords
	ScoringWeights map[string]float32

	VIPSenders    []int64
	ExcludedUsers []int64

	DetectCodes      bool
	DetectDocuments  bool
	DetectLinks      bool
	DetectPolls      bool
	RequireForwarded bool
	PrioritizePinned bool
	PrioritizeAdmin  bool

	Digest *config.ProfileDigestConfig

	MatchedProfileIDs []string // order preserved: explicit then auto-bound
}

// Resolve produces the ResolvedProfile for one entity (channel or monitored
// user) per spec.md §4.2. Resolution never fails: an unknown bound profile ID
// is logged and skipped.
func Resolve(cfg *config.Config, entityID int64, isChannel bool, explicitProfiles []string, overrides config.ChannelOverrides, legacy config.LegacyKeywordFields) ResolvedProfile {
	rp := ResolvedProfile{
		EntityID:  entityID,
		IsChannel: isChannel,
		Keywords:  make(map[string][]string),
	}

	boundIDs := cfg.BoundProfileIDs(explicitProfiles, entityID, isChannel)

	keywordSets := make(map[string]map[string]struct{}, len(config.KeywordCategories))
	for _, cat := range config.KeywordCategories {
		keywordSets[cat] = make(map[string]struct{})
	}

	var weightSums map[string]float64
	weightCounts := make(map[string]int)
	weightSums = make(map[string]float64)

	for _, id := range boundIDs {
		prof, ok := cfg.Profiles[id]
		if !ok {
			slog.Warn("resolver: unknown bound profile, skipping", "profile_id", id, "entity_id", entityID)
			continue
		}
		if !evalWhen(prof.When, entityID, isChannel) {
			continue
		}

		for cat, kws := range prof.Keywords {
			set, ok := keywordSets[cat]
			if !ok {
				continue
			}
			for _, kw := range kws {
				set[kw] = struct{}{}
			}
		}

		for cat, w := range prof.ScoringWeights {
			weightSums[cat] += float64(w)
			weightCounts[cat]++
		}

		rp.VIPSenders = append(rp.VIPSenders, prof.VIPSenders...)
		rp.ExcludedUsers = append(rp.ExcludedUsers, prof.ExcludedUsers...)

		rp.DetectCodes = rp.DetectCodes || prof.DetectCodes
		rp.DetectDocuments = rp.DetectDocuments || prof.DetectDocuments
		rp.DetectLinks = rp.DetectLinks || prof.DetectLinks
		rp.DetectPolls = rp.DetectPolls || prof.DetectPolls
		rp.RequireForwarded = rp.RequireForwarded || prof.RequireForwarded
		rp.PrioritizePinned = rp.PrioritizePinned || prof.PrioritizePinned
		rp.PrioritizeAdmin = rp.PrioritizeAdmin || prof.PrioritizeAdmin

		rp.MatchedProfileIDs = append(rp.MatchedProfileIDs, id)
	}

	// Merge legacy flat keyword fields for backward compatibility.
	for cat, kws := range legacy.Keywords {
		set, ok := keywordSets[cat]
		if !ok {
			continue
		}
		for _, kw := range kws {
			set[kw] = struct{}{}
		}
	}

	// Apply overrides: *_extra fields union in, excluded_users append. A
	// `when` predicate gates the whole override block, not individual
	// fields within it.
	applyOverrides := evalWhen(overrides.When, entityID, isChannel)
	if applyOverrides {
		for cat, kws := range overrides.KeywordsExtra {
			set, ok := keywordSets[cat]
			if !ok {
				continue
			}
			for _, kw := range kws {
				set[kw] = struct{}{}
			}
		}
		rp.ExcludedUsers = append(rp.ExcludedUsers, overrides.ExcludedUsers...)
	}

	// Finalize keyword categories: sort lexicographically for determinism.
	for _, cat := range config.KeywordCategories {
		set := keywordSets[cat]
		if len(set) == 0 {
			continue
		}
		kws := make([]string, 0, len(set))
		for kw := range set {
			kws = append(kws, kw)
		}
		sort.Strings(kws)
		rp.Keywords[cat] = kws
	}

	// Scoring weights: arithmetic mean across profiles, then overridden.
	rp.ScoringWeights = make(map[string]float32, len(weightSums))
	for cat, sum := range weightSums {
		rp.ScoringWeights[cat] = float32(sum / float64(weightCounts[cat]))
	}
	if applyOverrides {
		for cat, w := range overrides.ScoringWeights {
			rp.ScoringWeights[cat] = w
		}
	}

	// Resolve digest config by precedence: entity-level > overrides > first
	// bound profile's digest > none. Entity-level and overrides are callers'
	// responsibility to supply distinctly; see resolveDigest below for the
	// profile fallback. The overrides' own digest is gated by the same
	// `when` predicate as its other fields.
	effectiveOverrides := overrides
	if !applyOverrides {
		effectiveOverrides.Digest = nil
	}
	rp.Digest = resolveDigestFallback(cfg, effectiveOverrides, boundIDs)

	return rp
}

// resolveDigestFallback returns the overrides' digest if set, else the first
// bound profile's digest, else nil. Entity-level digest precedence is applied
// by the caller (ResolveChannel/ResolveUser), which is closer to the raw ChannelRule/
// MonitoredUser and can see the entity-level field directly.
func resolveDigestFallback(cfg *config.Config, overrides config.ChannelOverrides, boundIDs []string) *config.ProfileDigestConfig {
	if overrides.Digest != nil {
		return overrides.Digest
	}
	for _, id := range boundIDs {
		if prof, ok := cfg.Profiles[id]; ok && prof.Digest != nil {
			return prof.Digest
		}
	}
	return nil
}

// ResolveChannel resolves a ChannelRule, applying entity-level digest
// precedence over the overrides/profile fallback.
func ResolveChannel(cfg *config.Config, ch config.ChannelRule) ResolvedProfile {
	rp := Resolve(cfg, ch.ID, true, ch.Profiles, ch.Overrides, ch.LegacyKeywordFields)
	rp.VIPSenders = append(rp.VIPSenders, ch.VIPSenders...)
	rp.ExcludedUsers = append(rp.ExcludedUsers, ch.ExcludedUsers...)
	if ch.Digest != nil {
		rp.Digest = ch.Digest
	}
	return rp
}

// ResolveUser resolves a MonitoredUser, applying the same entity-level
// digest precedence as ResolveChannel.
func ResolveUser(cfg *config.Config, u config.MonitoredUser) ResolvedProfile {
	rp := Resolve(cfg, u.ID, false, u.Profiles, u.Overrides, u.LegacyKeywordFields)
	rp.VIPSenders = append(rp.VIPSenders, u.VIPSenders...)
	rp.ExcludedUsers = append(rp.ExcludedUsers, u.ExcludedUsers...)
	if u.Digest != nil {
		rp.Digest = u.Digest
	}
	return rp
}
