// Package config loads and hot-reloads the declarative TGSentinel configuration:
// global profiles plus per-channel/per-user bindings and overrides (C1).
package config

import "time"

// Schedule is a digest cadence.
type Schedule string

const (
	ScheduleHourly    Schedule = "hourly"
	ScheduleEvery4h   Schedule = "every_4h"
	ScheduleEvery6h   Schedule = "every_6h"
	ScheduleEvery12h  Schedule = "every_12h"
	ScheduleDaily     Schedule = "daily"
	ScheduleWeekly    Schedule = "weekly"
	ScheduleNone      Schedule = "none"
)

// SchedulePriority orders cadences by binding priority, highest first.
// Used by the worker to pick the primary digest_schedule for a scored message.
var SchedulePriority = []Schedule{
	ScheduleHourly, ScheduleEvery4h, ScheduleEvery6h, ScheduleEvery12h, ScheduleDaily, ScheduleWeekly, ScheduleNone,
}

// DeliveryMode controls where a matched message is delivered.
type DeliveryMode string

const (
	ModeNone   DeliveryMode = "none"
	ModeDM     DeliveryMode = "dm"
	ModeDigest DeliveryMode = "digest"
	ModeBoth   DeliveryMode = "both"
)

// NormalizeMode applies the legacy-shim normalization: "channel" silently
// becomes "dm".
func NormalizeMode(m string) DeliveryMode {
	if m == "channel" {
		return ModeDM
	}
	if m == "" {
		return ModeNone
	}
	return DeliveryMode(m)
}

// ScheduleConfig is one cadence entry inside a ProfileDigestConfig.
type ScheduleConfig struct {
	Schedule     Schedule     `yaml:"schedule"`
	Enabled      bool         `yaml:"enabled"`
	TopN         *int         `yaml:"top_n,omitempty"`
	MinScore     *float32     `yaml:"min_score,omitempty"`
	DailyHour    int          `yaml:"daily_hour"`  // 0..23; an unset value reads as 0 (digest.ResolveAnchors uses 8 only when no group is bound)
	WeeklyDay    int          `yaml:"weekly_day"`  // 0..6 (Monday=0)
	WeeklyHour   int          `yaml:"weekly_hour"` // 0..23
	Mode         DeliveryMode `yaml:"mode"`
	TargetChannel string      `yaml:"target_channel"`
}

// ProfileDigestConfig is the digest delivery configuration bound to a profile
// or entity. Max 3 schedules per spec.md §3.
type ProfileDigestConfig struct {
	Schedules []ScheduleConfig `yaml:"schedules"`
	TopN      int              `yaml:"top_n"` // default 10
	MinScore  float32          `yaml:"min_score"`
	Mode      DeliveryMode     `yaml:"mode"`
	TargetChannel string       `yaml:"target_channel,omitempty"`
}

// KeywordCategories lists the 9 fixed keyword categories a profile scores on.
var KeywordCategories = []string{
	"security", "urgency", "action", "decision", "importance",
	"release", "risk", "opportunity", "general",
}

// ProfileDefinition is a global, named scoring profile (keyword-based or semantic).
type ProfileDefinition struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`

	Channels []int64 `yaml:"channels"`
	Users    []int64 `yaml:"users"`

	Keywords map[string][]string `yaml:"keywords"` // category -> keywords

	VIPSenders     []int64  `yaml:"vip_senders"`
	ExcludedUsers  []int64  `yaml:"excluded_users"`
	PositiveSamples []string `yaml:"positive_samples"`
	NegativeSamples []string `yaml:"negative_samples"`

	Threshold float32 `yaml:"threshold"` // semantic, 0..1
	MinScore  float32 `yaml:"min_score"` // heuristic, 0..10

	ScoringWeights map[string]float32 `yaml:"scoring_weights"`

	Digest *ProfileDigestConfig `yaml:"digest,omitempty"`

	DetectCodes      bool `yaml:"detect_codes"`
	DetectDocuments  bool `yaml:"detect_documents"`
	DetectLinks      bool `yaml:"detect_links"`
	DetectPolls      bool `yaml:"detect_polls"`
	RequireForwarded bool `yaml:"require_forwarded"`
	PrioritizePinned bool `yaml:"prioritize_pinned"`
	PrioritizeAdmin  bool `yaml:"prioritize_admin"`

	// Enrichment beyond spec.md: optional CEL predicate gating override
	// application for this profile (see SPEC_FULL.md Domain Stack, cel-go).
	When string `yaml:"when,omitempty"`
}

// IsSemantic reports whether the profile runs the semantic pipeline rather
// than the keyword pipeline. The two are mutually exclusive per-profile.
func (p ProfileDefinition) IsSemantic() bool {
	return len(p.PositiveSamples) > 0
}

// ChannelOverrides carries additive/replacement fields a channel or user binds.
type ChannelOverrides struct {
	KeywordsExtra map[string][]string `yaml:"keywords_extra"`
	ScoringWeights map[string]float32 `yaml:"scoring_weights"`
	Digest        *ProfileDigestConfig `yaml:"digest,omitempty"`
	ExcludedUsers []int64             `yaml:"excluded_users"`
	When          string              `yaml:"when,omitempty"`
}

// LegacyKeywordFields holds pre-migration flat keyword lists kept for
// backward compatibility (see tools/migrate_profiles.py in SPEC_FULL.md §3).
type LegacyKeywordFields struct {
	Keywords map[string][]string `yaml:"keywords,omitempty"`
}

// ChannelRule binds profiles (and overrides) to a channel.
type ChannelRule struct {
	ID      int64  `yaml:"id"`
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`

	Profiles  []string         `yaml:"profiles"`
	Overrides ChannelOverrides `yaml:"overrides"`
	Digest    *ProfileDigestConfig `yaml:"digest,omitempty"`

	VIPSenders    []int64 `yaml:"vip_senders"`
	ExcludedUsers []int64 `yaml:"excluded_users"`

	LegacyKeywordFields `yaml:",inline"`
}

// MonitoredUser is ChannelRule's counterpart for direct-message peers.
type MonitoredUser struct {
	ID      int64  `yaml:"id"`
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`

	Profiles  []string         `yaml:"profiles"`
	Overrides ChannelOverrides `yaml:"overrides"`
	Digest    *ProfileDigestConfig `yaml:"digest,omitempty"`

	VIPSenders    []int64 `yaml:"vip_senders"`
	ExcludedUsers []int64 `yaml:"excluded_users"`

	LegacyKeywordFields `yaml:",inline"`
}

// RetentionConfig configures the persistence-layer sweeper (C3).
type RetentionConfig struct {
	RetentionDays    int     `yaml:"retention_days"`
	AlertMultiplier  float64 `yaml:"alert_multiplier"`
	MaxMessages      int     `yaml:"max_messages"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	VacuumInterval   time.Duration `yaml:"vacuum_interval"`
}

// AlertRateLimitConfig bounds how fast one chat's alerts can be dispatched,
// a token bucket per chat_id (see internal/worker's RateLimitedDispatcher).
type AlertRateLimitConfig struct {
	EventsPerSecond float64 `yaml:"events_per_second"`
	Burst           int     `yaml:"burst"`
}

// RedisConfig names the coordination-store connection (§6.1).
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Stream   string `yaml:"stream"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// Config is the fully typed application configuration (C1's AppCfg).
type Config struct {
	Profiles map[string]ProfileDefinition `yaml:"profiles"`
	Channels []ChannelRule                `yaml:"channels"`
	Users    []MonitoredUser               `yaml:"users"`

	Redis RedisConfig `yaml:"redis"`
	DBURI string      `yaml:"db_uri"`

	EmbeddingsModel     string  `yaml:"embeddings_model"`
	SimilarityThreshold float32 `yaml:"similarity_threshold"`

	AlertMode    DeliveryMode `yaml:"alert_mode"` // dm, channel, both
	AlertChannel string       `yaml:"alert_channel"`

	HourlyDigest bool `yaml:"hourly_digest"`
	DailyDigest  bool `yaml:"daily_digest"`
	DigestTopN   int  `yaml:"digest_top_n"`

	NotificationChannel string `yaml:"notification_channel"`
	AdminToken          string `yaml:"admin_token"`
	LogLevel            string `yaml:"log_level"`

	Retention RetentionConfig `yaml:"retention"`

	AlertRateLimit AlertRateLimitConfig `yaml:"alert_rate_limit"`

	SessionPath string `yaml:"session_path"`
}
