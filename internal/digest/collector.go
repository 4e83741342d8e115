package digest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/digest/format"
	"github.com/redoracle/tgsentinel/internal/store"
)

// windowFor returns the lookback window a cadence collects over, per
// spec.md §4.8's "time window derived from the cadence (1, 4, 6, 12, 24,
// 168 hours)".
func windowFor(schedule config.Schedule) time.Duration {
	switch schedule {
	case config.ScheduleHourly:
		return time.Hour
	case config.ScheduleEvery4h:
		return 4 * time.Hour
	case config.ScheduleEvery6h:
		return 6 * time.Hour
	case config.ScheduleEvery12h:
		return 12 * time.Hour
	case config.ScheduleDaily:
		return 24 * time.Hour
	case config.ScheduleWeekly:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// effectiveScore implements spec.md §4.8's "max(keyword_score, max(semantic
// scores)), falling back to score" rule.
func effectiveScore(m store.StoredMessage) float32 {
	best := m.KeywordScore
	for _, v := range m.SemanticScores {
		if v > best {
			best = v
		}
	}
	if best == 0 {
		return m.Score
	}
	return best
}

// Collect gathers the due schedule's candidate messages across profileIDs,
// deduplicates by (chat_id, msg_id) across those profiles, and returns the
// top-N ranked by (score desc, created_at desc).
func Collect(ctx context.Context, messages store.MessageStore, schedule config.Schedule, minScore float32, topN int, vip func(senderID int64) bool) ([]format.Entry, error) {
	since := time.Now().Add(-windowFor(schedule))

	rows, err := messages.FeedCandidates(ctx, string(schedule), since, minScore)
	if err != nil {
		return nil, fmt.Errorf("digest: collect candidates for %s: %w", schedule, err)
	}

	type dedupKey struct {
		chatID int64
		msgID  int64
	}
	dedup := make(map[dedupKey]format.Entry, len(rows))
	order := make([]dedupKey, 0, len(rows))

	for _, m := range rows {
		k := dedupKey{m.ChatID, m.MsgID}
		score := effectiveScore(m)

		existing, ok := dedup[k]
		if !ok {
			e := format.Entry{
				ChatID: m.ChatID, MsgID: m.MsgID,
				ChatTitle: m.ChatTitle, SenderID: m.SenderID, SenderName: m.SenderName,
				MessageText:        m.MessageText,
				EffectiveScore:     score,
				KeywordScore:       m.KeywordScore,
				SemanticScores:     m.SemanticScores,
				MatchedProfiles:    append([]string(nil), m.MatchedProfiles...),
				TriggerAnnotations: m.TriggerAnnotations,
				CreatedAt:          m.CreatedAt,
			}
			if vip != nil {
				e.IsVIP = vip(m.SenderID)
			}
			dedup[k] = e
			order = append(order, k)
			continue
		}

		// Merge: union matched_profiles, keep max score, keep latest created_at.
		existing.MatchedProfiles = unionStrings(existing.MatchedProfiles, m.MatchedProfiles)
		if score > existing.EffectiveScore {
			existing.EffectiveScore = score
			existing.KeywordScore = m.KeywordScore
			existing.SemanticScores = m.SemanticScores
		}
		if m.CreatedAt.After(existing.CreatedAt) {
			existing.CreatedAt = m.CreatedAt
		}
		dedup[k] = existing
	}

	entries := make([]format.Entry, 0, len(order))
	for _, k := range order {
		entries = append(entries, dedup[k])
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].EffectiveScore != entries[j].EffectiveScore {
			return entries[i].EffectiveScore > entries[j].EffectiveScore
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	return entries, nil
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
