package digest

import (
	"github.com/redoracle/tgsentinel/internal/config"
)

// Group is one discovered (entity, schedule) binding: a digest config and
// the profile IDs it should match against, emitted by Discover for every
// enabled cadence found on a global profile, channel, or monitored user.
type Group struct {
	EntityID   int64
	EntityName string
	IsProfile  bool // true when discovered directly on a global ProfileDefinition

	Schedule   config.ScheduleConfig
	Digest     config.ProfileDigestConfig
	ProfileIDs []string
}

// Discover walks global profiles, channels, and users, returning one Group
// per (entity, schedule) pair where schedule is enabled and matches the due
// cadence.
func Discover(cfg *config.Config, due config.Schedule) []Group {
	var groups []Group

	for id, p := range cfg.Profiles {
		if !p.Enabled || p.Digest == nil {
			continue
		}
		if sc, ok := scheduleIn(p.Digest.Schedules, due); ok {
			groups = append(groups, Group{
				EntityID: 0, EntityName: p.Name, IsProfile: true,
				Schedule: sc, Digest: *p.Digest, ProfileIDs: []string{id},
			})
		}
	}

	for _, ch := range cfg.Channels {
		if !ch.Enabled || ch.Digest == nil {
			continue
		}
		if sc, ok := scheduleIn(ch.Digest.Schedules, due); ok {
			groups = append(groups, Group{
				EntityID: ch.ID, EntityName: ch.Name,
				Schedule: sc, Digest: *ch.Digest, ProfileIDs: ch.Profiles,
			})
		}
	}

	for _, u := range cfg.Users {
		if !u.Enabled || u.Digest == nil {
			continue
		}
		if sc, ok := scheduleIn(u.Digest.Schedules, due); ok {
			groups = append(groups, Group{
				EntityID: u.ID, EntityName: u.Name,
				Schedule: sc, Digest: *u.Digest, ProfileIDs: u.Profiles,
			})
		}
	}

	return groups
}

func scheduleIn(schedules []config.ScheduleConfig, due config.Schedule) (config.ScheduleConfig, bool) {
	for _, sc := range schedules {
		if sc.Enabled && sc.Schedule == due {
			return sc, true
		}
	}
	return config.ScheduleConfig{}, false
}
