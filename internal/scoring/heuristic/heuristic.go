// Package heuristic implements the C5 evaluator: a pure function from a
// chat event and a resolved profile to a pre-score, its reasons, and the
// keyword annotations that produced it.
package heuristic

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/redoracle/tgsentinel/internal/ingest"
	"github.com/redoracle/tgsentinel/internal/resolver"
)

// Fixed scoring terms (spec.md §4.5).
const (
	weightMentioned = 1.0
	weightVIP       = 0.8
	weightReactions = 0.4
	weightReplies   = 0.4
	weightCodes     = 1.3
	weightDocuments = 0.7
	weightLinks     = 0.5
	weightPolls     = 1.0
	weightPinned    = 1.2
	weightAdmin     = 0.9
)

const defaultCategoryWeight = 0.6

// Result is the heuristic evaluator's output.
type Result struct {
	PreScore           float32
	Reasons            []string
	TriggerAnnotations map[string][]string // category -> matched keywords
	ContentHash        string
	Dropped            bool // require_forwarded filter rejected this event
}

var (
	urlPattern = regexp.MustCompile(`(?i)\bhttps?://\S+`)

	codeFencePattern = regexp.MustCompile("(?s)```.*?```")
	funcLikePattern  = regexp.MustCompile(`(?i)\b(function|def|class|func|public|private|static)\b[^\n]*[({]`)
	indentedLine     = regexp.MustCompile(`(?m)^[ \t]{2,}\S`)

	documentMediaTypes = map[string]bool{
		"document": true, "pdf": true, "spreadsheet": true, "presentation": true,
		"archive": true, "file": true,
	}
)

// ContentHash returns the SHA-256 hex digest of the message text, used for
// dedup tooling (spec.md §4.5).
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Evaluate runs the pure heuristic scoring pass for one event against its
// resolved profile. lookup may be nil, in which case prioritize_admin never
// fires (no admin roster available).
func Evaluate(ev ingest.ChatEvent, rp resolver.ResolvedProfile, lookup resolver.ParticipantLookup, reactionThreshold, replyThreshold int32) Result {
	res := Result{ContentHash: ContentHash(ev.Text)}

	if rp.RequireForwarded && !ev.HasForward {
		res.Dropped = true
		return res
	}

	if ev.Mentioned {
		res.PreScore += weightMentioned
		res.Reasons = append(res.Reasons, "mention")
	}
	if rp.IsVIP(ev.SenderID) {
		res.PreScore += weightVIP
		res.Reasons = append(res.Reasons, "vip")
	}
	if reactionThreshold > 0 && ev.ReactionsCount >= reactionThreshold {
		res.PreScore += weightReactions
		res.Reasons = append(res.Reasons, "reactions")
	}
	if replyThreshold > 0 && ev.RepliesCount >= replyThreshold {
		res.PreScore += weightReplies
		res.Reasons = append(res.Reasons, "replies")
	}

	if matches := matchKeywordCategories(ev.Text, rp.Keywords); len(matches) > 0 {
		res.TriggerAnnotations = matches
		for _, category := range sortedKeys(matches) {
			res.PreScore += categoryWeight(rp.ScoringWeights, category)
			res.Reasons = append(res.Reasons, "keywords:"+category)
		}
	}

	if rp.DetectCodes && detectCodePatterns(ev.Text) {
		res.PreScore += weightCodes
		res.Reasons = append(res.Reasons, "detect_codes")
	}
	if rp.DetectDocuments && ev.HasMedia && documentMediaTypes[strings.ToLower(ev.MediaType)] {
		res.PreScore += weightDocuments
		res.Reasons = append(res.Reasons, "detect_documents")
	}
	if rp.DetectLinks && urlPattern.MatchString(ev.Text) {
		res.PreScore += weightLinks
		res.Reasons = append(res.Reasons, "detect_links")
	}
	if rp.DetectPolls && ev.HasMedia && strings.EqualFold(ev.MediaType, "poll") {
		res.PreScore += weightPolls
		res.Reasons = append(res.Reasons, "detect_polls")
	}
	if rp.PrioritizePinned && ev.IsPinned {
		res.PreScore += weightPinned
		res.Reasons = append(res.Reasons, "prioritize_pinned")
	}
	if rp.PrioritizeAdmin && lookup != nil {
		if info, ok := lookup.Lookup(ev.ChatID, ev.SenderID); ok && info.IsAdmin {
			res.PreScore += weightAdmin
			res.Reasons = append(res.Reasons, "prioritize_admin")
		}
	}

	return res
}

func categoryWeight(weights map[string]float32, category string) float32 {
	if w, ok := weights[category]; ok {
		return w
	}
	return defaultCategoryWeight
}

// matchKeywordCategories runs one case-insensitive escaped-alternation
// regex per category over text, returning the categories that matched and
// the keywords that matched within each.
func matchKeywordCategories(text string, categories map[string][]string) map[string][]string {
	if text == "" || len(categories) == 0 {
		return nil
	}
	out := map[string][]string{}
	for category, keywords := range categories {
		if len(keywords) == 0 {
			continue
		}
		var matched []string
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			rx := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(kw))
			if rx.MatchString(text) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			sort.Strings(matched)
			out[category] = matched
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// detectCodePatterns reports whether text looks like it contains code: a
// fenced code block, function/class-like syntax, or four or more
// consecutive indented lines. A bare acronym or short sentence never
// triggers it.
func detectCodePatterns(text string) bool {
	if codeFencePattern.MatchString(text) {
		return true
	}
	if funcLikePattern.MatchString(text) {
		return true
	}
	return hasConsecutiveIndentedLines(text, 4)
}

func hasConsecutiveIndentedLines(text string, n int) bool {
	lines := strings.Split(text, "\n")
	run := 0
	for _, line := range lines {
		if indentedLine.MatchString(line) {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
