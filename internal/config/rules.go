package config

// ChannelRuleFor returns the ChannelRule bound to chatID, if enabled and
// configured explicitly (auto-binding alone doesn't require a ChannelRule
// to exist — see resolver.Resolve).
func (c *Config) ChannelRuleFor(chatID int64) (ChannelRule, bool) {
	for _, r := range c.Channels {
		if r.ID == chatID && r.Enabled {
			return r, true
		}
	}
	return ChannelRule{}, false
}

// MonitoredUserFor returns the MonitoredUser bound to userID.
func (c *Config) MonitoredUserFor(userID int64) (MonitoredUser, bool) {
	for _, u := range c.Users {
		if u.ID == userID && u.Enabled {
			return u, true
		}
	}
	return MonitoredUser{}, false
}

// HasAnyAutoBindingProfile reports whether at least one enabled global
// profile would auto-bind to this entity, letting the worker decide
// whether an unlisted chat/user still deserves scoring (spec.md §4.7 step
// 2: "if none and no auto-binding applies, ack and skip").
func (c *Config) HasAnyAutoBindingProfile(entityID int64, isChannel bool) bool {
	for _, p := range c.Profiles {
		if p.AutoBinds(entityID, isChannel) {
			return true
		}
	}
	return false
}
