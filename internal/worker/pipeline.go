// Package worker implements the C7 scoring pipeline: the single logical
// consumer loop that turns one ingested ChatEvent into a scored,
// deduplicated StoredMessage and either an immediate alert dispatch or a
// digest candidate.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/ingest"
	"github.com/redoracle/tgsentinel/internal/metrics"
	"github.com/redoracle/tgsentinel/internal/resolver"
	"github.com/redoracle/tgsentinel/internal/scoring/heuristic"
	"github.com/redoracle/tgsentinel/internal/scoring/semantic"
	"github.com/redoracle/tgsentinel/internal/store"
)

// AlertDispatcher delivers an immediately-matched message to its
// configured destination (DM or alert channel). Implemented by
// ChatDispatcher over a platform.ChatClient, and wrapped by
// RateLimitedDispatcher.
type AlertDispatcher interface {
	DispatchAlert(ctx context.Context, m store.StoredMessage, mode config.DeliveryMode, targetChannel string) error
}

// Pipeline holds everything one scoring pass needs. It owns no connection
// of its own — callers wire a stream, a config store, persistence, and a
// dispatcher.
type Pipeline struct {
	Config     *config.Store
	Messages   store.MessageStore
	Lookup     resolver.ParticipantLookup
	Semantic   *semantic.Evaluator
	Dispatcher AlertDispatcher
	Metrics    *metrics.Metrics // optional; nil disables counters/tracing

	ReactionThreshold int32
	ReplyThreshold    int32
}

// skipReason names why a message never reached scoring, for structured
// logging without raising an error (the message is still acked).
type skipReason string

const (
	skipNoRule          skipReason = "no_rule"
	skipExcludedUser    skipReason = "excluded_user"
	skipNotForwarded    skipReason = "require_forwarded"
	skipUnmonitoredUser skipReason = "unmonitored_private_user"
)

// ProcessEvent runs the full 12-step pipeline (spec.md §4.7) for one
// decoded event, returning the StoredMessage it wrote (or the zero value
// if the event was skipped/dropped before scoring). A non-nil error means
// the caller must NOT ack — the message should be retried via the
// stream's redelivery mechanism.
func (p *Pipeline) ProcessEvent(ctx context.Context, ev ingest.ChatEvent) (store.StoredMessage, bool, error) {
	var span trace.Span
	if p.Metrics != nil {
		ctx, span = metrics.StartMessageSpan(ctx, ev.ChatID, ev.MsgID)
	}
	msg, processed, err := p.processEvent(ctx, ev)
	if p.Metrics != nil {
		metrics.FinishSpan(span, err)
		switch {
		case err != nil:
			p.Metrics.MessageErrored(ctx, "store_error")
		case processed:
			p.Metrics.MessageProcessed(ctx)
		}
	}
	return msg, processed, err
}

func (p *Pipeline) processEvent(ctx context.Context, ev ingest.ChatEvent) (store.StoredMessage, bool, error) {
	cfg := p.Config.Current()

	rp, matchedProfiles, found := p.resolveEntity(cfg, ev)
	if !found {
		slog.Debug("worker: skip, no rule and no auto-binding profile", "chat_id", ev.ChatID)
		return store.StoredMessage{}, false, nil
	}

	if reason, skip := p.applyFilters(cfg, ev, rp); skip {
		slog.Debug("worker: skip", "chat_id", ev.ChatID, "msg_id", ev.MsgID, "reason", reason)
		return store.StoredMessage{}, false, nil
	}

	heur := heuristic.Evaluate(ev, rp, p.Lookup, p.ReactionThreshold, p.ReplyThreshold)
	if heur.Dropped {
		slog.Debug("worker: skip", "chat_id", ev.ChatID, "msg_id", ev.MsgID, "reason", skipNotForwarded)
		return store.StoredMessage{}, false, nil
	}

	alertMatches, alertMode, alertTarget := p.evaluateAlertProfiles(cfg, matchedProfiles, heur.PreScore, rp)

	var interest semantic.InterestResult
	if p.Semantic != nil {
		interest = p.Semantic.EvaluateInterestProfiles(ctx, ev.Text, semanticProfiles(cfg, matchedProfiles))
	}

	feedAlertFlag := len(alertMatches) > 0
	feedInterestFlag := interest.ShouldIncludeInFeed

	allMatched := unionProfileIDs(alertMatches, interest.MatchedProfileIDs)
	digestSchedule := primaryDigestSchedule(rp)

	combinedScore := heur.PreScore
	for _, v := range interest.SemanticScores {
		if v > combinedScore {
			combinedScore = v
		}
	}

	msg := store.StoredMessage{
		ChatID: ev.ChatID, MsgID: ev.MsgID,
		ChatTitle: ev.ChatTitle, SenderID: ev.SenderID, SenderName: ev.SenderName,
		MessageText: ev.Text, ContentHash: heur.ContentHash,
		Score: combinedScore, KeywordScore: heur.PreScore,
		SemanticScores: interest.SemanticScores,
		Triggers:       flattenTriggers(heur.TriggerAnnotations),
		TriggerAnnotations: heur.TriggerAnnotations,
		MatchedProfiles:    allMatched,
		FeedAlertFlag:      feedAlertFlag,
		FeedInterestFlag:   feedInterestFlag,
		DigestSchedule:     digestSchedule,
		CreatedAt:          ev.Timestamp,
	}

	if feedAlertFlag && (alertMode == config.ModeDM || alertMode == config.ModeBoth) {
		if p.Dispatcher != nil {
			if err := p.Dispatcher.DispatchAlert(ctx, msg, alertMode, alertTarget); err != nil {
				slog.Error("worker: alert dispatch failed", "chat_id", ev.ChatID, "msg_id", ev.MsgID, "error", err)
			} else {
				msg.Alerted = true
			}
		}
	}

	if err := p.Messages.Upsert(ctx, msg); err != nil {
		return store.StoredMessage{}, false, fmt.Errorf("worker: upsert chat=%d msg=%d: %w", ev.ChatID, ev.MsgID, err)
	}

	return msg, true, nil
}

// resolveEntity looks up the binding rule for the event's chat/sender and
// resolves its profile. ok=false means ack-and-skip: no rule and no
// auto-binding profile applies (spec.md §4.7 step 2).
func (p *Pipeline) resolveEntity(cfg *config.Config, ev ingest.ChatEvent) (resolver.ResolvedProfile, []config.ProfileDefinition, bool) {
	isChannel := ev.ChatID < 0

	var rp resolver.ResolvedProfile
	ruleFound := false

	if isChannel {
		if r, ok := cfg.ChannelRuleFor(ev.ChatID); ok {
			rp = resolver.ResolveChannel(cfg, r)
			ruleFound = true
		}
	} else {
		if u, ok := cfg.MonitoredUserFor(ev.ChatID); ok {
			rp = resolver.ResolveUser(cfg, u)
			ruleFound = true
		}
	}

	if !ruleFound {
		if !cfg.HasAnyAutoBindingProfile(ev.ChatID, isChannel) {
			return resolver.ResolvedProfile{}, nil, false
		}
		rp = resolver.Resolve(cfg, ev.ChatID, isChannel, nil, config.ChannelOverrides{}, config.LegacyKeywordFields{})
	}

	return rp, profilesFor(cfg, rp.MatchedProfileIDs), true
}

// applyFilters implements spec.md §4.7 step 4.
func (p *Pipeline) applyFilters(cfg *config.Config, ev ingest.ChatEvent, rp resolver.ResolvedProfile) (skipReason, bool) {
	if rp.IsExcluded(ev.SenderID) {
		return skipExcludedUser, true
	}
	if ev.ChatID > 0 {
		if _, ok := cfg.MonitoredUserFor(ev.ChatID); !ok {
			return skipUnmonitoredUser, true
		}
	}
	return "", false
}

func profilesFor(cfg *config.Config, ids []string) []config.ProfileDefinition {
	out := make([]config.ProfileDefinition, 0, len(ids))
	for _, id := range ids {
		if p, ok := cfg.Profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func semanticProfiles(cfg *config.Config, profiles []config.ProfileDefinition) []config.ProfileDefinition {
	out := make([]config.ProfileDefinition, 0, len(profiles))
	for _, p := range profiles {
		if p.IsSemantic() {
			out = append(out, p)
		}
	}
	return out
}

// evaluateAlertProfiles implements spec.md §4.7 step 6: for each bound
// keyword profile, compare the shared pre_score against its own
// min_score. Delivery mode/target come from the entity's resolved digest
// config (already precedence-merged by C2).
func (p *Pipeline) evaluateAlertProfiles(cfg *config.Config, profiles []config.ProfileDefinition, preScore float32, rp resolver.ResolvedProfile) ([]string, config.DeliveryMode, string) {
	var matched []string
	for _, prof := range profiles {
		if prof.IsSemantic() {
			continue
		}
		if preScore >= prof.MinScore {
			matched = append(matched, prof.ID)
		}
	}
	if len(matched) == 0 {
		return nil, config.ModeNone, ""
	}
	if rp.Digest != nil {
		return matched, rp.Digest.Mode, rp.Digest.TargetChannel
	}
	return matched, cfg.AlertMode, cfg.AlertChannel
}

// primaryDigestSchedule picks the highest-priority enabled schedule from
// the resolved digest config (spec.md §4.7 step 9).
func primaryDigestSchedule(rp resolver.ResolvedProfile) string {
	if rp.Digest == nil {
		return string(config.ScheduleNone)
	}
	enabled := make(map[config.Schedule]bool, len(rp.Digest.Schedules))
	for _, sc := range rp.Digest.Schedules {
		if sc.Enabled {
			enabled[sc.Schedule] = true
		}
	}
	for _, s := range config.SchedulePriority {
		if enabled[s] {
			return string(s)
		}
	}
	return string(config.ScheduleNone)
}

func flattenTriggers(annotations map[string][]string) []string {
	if len(annotations) == 0 {
		return nil
	}
	var out []string
	for _, kws := range annotations {
		out = append(out, kws...)
	}
	return out
}

func unionProfileIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
