package digest

import (
	"log/slog"
	"sort"

	"github.com/redoracle/tgsentinel/internal/config"
)

const (
	defaultDailyHour  = 8
	defaultWeeklyDay  = 0 // Monday
	defaultWeeklyHour = 8
)

// ResolveAnchors picks the daily_hour / (weekly_day, weekly_hour) the
// scheduler checks a cadence's due-ness against, per spec.md §4.8's
// precedence ("entity-level > override-level > profile-level > default;
// plurality on disagreement, with a warning").
//
// Groups already carry the precedence-resolved ScheduleConfig for their own
// entity (resolver.Resolve/Discover do not flatten overrides separately,
// so every Group's Schedule is already its entity's most-specific value);
// this function only needs to reconcile disagreement *across* groups docked
// to the same due cadence.
func ResolveAnchors(groups []Group) (dailyHour, weeklyDay, weeklyHour int) {
	if len(groups) == 0 {
		return defaultDailyHour, defaultWeeklyDay, defaultWeeklyHour
	}

	dailyHour = plurality(mapInts(groups, func(g Group) int { return g.Schedule.DailyHour }), defaultDailyHour, "daily_hour")
	weeklyDay = plurality(mapInts(groups, func(g Group) int { return g.Schedule.WeeklyDay }), defaultWeeklyDay, "weekly_day")
	weeklyHour = plurality(mapInts(groups, func(g Group) int { return g.Schedule.WeeklyHour }), defaultWeeklyHour, "weekly_hour")
	return
}

func mapInts(groups []Group, f func(Group) int) []int {
	out := make([]int, len(groups))
	for i, g := range groups {
		out[i] = f(g)
	}
	return out
}

// plurality returns the most common value in vs, defaulting ties to the
// lowest value for determinism and logging a warning on disagreement.
func plurality(vs []int, def int, field string) int {
	if len(vs) == 0 {
		return def
	}
	counts := make(map[int]int, len(vs))
	for _, v := range vs {
		counts[v]++
	}
	if len(counts) == 1 {
		return vs[0]
	}

	best, bestCount := vs[0], -1
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	slog.Warn("digest: anchor disagreement across bound entities, using plurality", "field", field, "chosen", best, "candidates", counts)
	return best
}

// Aggregated is the merged run parameters for a due cadence across every
// discovered group, per spec.md §4.8's Aggregation rules.
type Aggregated struct {
	MinScore   float32
	TopN       int
	Mode       config.DeliveryMode
	Target     string
	ProfileIDs []string
}

// Aggregate merges groups discovered for the same due schedule into one run.
func Aggregate(groups []Group, globalTargetChannel string) Aggregated {
	agg := Aggregated{MinScore: -1, TopN: 0}

	modes := make(map[config.DeliveryMode]int)
	targets := make(map[string]int)
	profileSet := make(map[string]struct{})

	for _, g := range groups {
		minScore := g.Digest.MinScore
		if g.Schedule.MinScore != nil {
			minScore = *g.Schedule.MinScore
		}
		if agg.MinScore < 0 || minScore < agg.MinScore {
			agg.MinScore = minScore
		}

		topN := g.Digest.TopN
		if g.Schedule.TopN != nil {
			topN = *g.Schedule.TopN
		}
		if topN > agg.TopN {
			agg.TopN = topN
		}

		mode := g.Schedule.Mode
		if mode == "" {
			mode = g.Digest.Mode
		}
		modes[mode]++

		target := g.Schedule.TargetChannel
		if target == "" {
			target = g.Digest.TargetChannel
		}
		if target != "" {
			targets[target]++
		}

		for _, pid := range g.ProfileIDs {
			profileSet[pid] = struct{}{}
		}
	}

	if agg.MinScore < 0 {
		agg.MinScore = 0
	}
	if agg.TopN == 0 {
		agg.TopN = 10
	}

	agg.Mode = resolveMode(modes, globalTargetChannel)
	agg.Target = resolveTarget(targets)

	agg.ProfileIDs = make([]string, 0, len(profileSet))
	for pid := range profileSet {
		agg.ProfileIDs = append(agg.ProfileIDs, pid)
	}
	sort.Strings(agg.ProfileIDs)
	return agg
}

// resolveMode implements "unanimous -> that mode; disagreement -> both if a
// global target channel is configured, else dm".
func resolveMode(modes map[config.DeliveryMode]int, globalTargetChannel string) config.DeliveryMode {
	if len(modes) == 1 {
		for m := range modes {
			return m
		}
	}
	if len(modes) == 0 {
		return config.ModeNone
	}
	if globalTargetChannel != "" {
		return config.ModeBoth
	}
	return config.ModeDM
}

// resolveTarget implements "unanimous -> that channel; multiple ->
// lexicographically first, warn".
func resolveTarget(targets map[string]int) string {
	if len(targets) == 0 {
		return ""
	}
	names := make([]string, 0, len(targets))
	for t := range targets {
		names = append(names, t)
	}
	sort.Strings(names)
	if len(names) > 1 {
		slog.Warn("digest: target channel disagreement across bound entities, using lexicographically first", "chosen", names[0], "candidates", names)
	}
	return names[0]
}
