package config

import "sort"

// AutoBinds reports whether a global profile auto-binds to the given entity
// ID, per spec.md §4.1:
//   - both Channels and Users empty -> binds to everything
//   - Channels contains the ID -> binds (when isChannel)
//   - Users contains the ID -> binds (when !isChannel)
func (p ProfileDefinition) AutoBinds(entityID int64, isChannel bool) bool {
	if !p.Enabled {
		return false
	}
	if len(p.Channels) == 0 && len(p.Users) == 0 {
		return true
	}
	if isChannel {
		return containsInt64(p.Channels, entityID)
	}
	return containsInt64(p.Users, entityID)
}

func containsInt64(xs []int64, v int64) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// BoundProfileIDs returns the profile IDs bound to entityID: the entity's
// explicit list plus every enabled global profile whose auto-binding matches,
// in the order explicit-then-auto, deduplicated.
func (c *Config) BoundProfileIDs(explicit []string, entityID int64, isChannel bool) []string {
	seen := make(map[string]bool, len(explicit))
	var out []string
	for _, id := range explicit {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	// Auto-bound candidates are gathered then sorted by ID so resolution stays
	// deterministic across runs despite Go's randomized map iteration order
	// (spec.md §8: "resolve(entity, cfg) is a pure function").
	var autoIDs []string
	for id, p := range c.Profiles {
		if !p.Enabled || seen[id] {
			continue
		}
		if p.AutoBinds(entityID, isChannel) {
			autoIDs = append(autoIDs, id)
		}
	}
	sort.Strings(autoIDs)
	for _, id := range autoIDs {
		seen[id] = true
		out = append(out, id)
	}
	return out
}
