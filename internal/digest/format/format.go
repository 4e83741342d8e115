// Package format renders a digest run into one or more chunked text
// documents, respecting spec.md §6.6's 4096-character platform limit and
// splitting only at line boundaries.
package format

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const maxChunkSize = 4096

// Entry is one deduplicated, ranked digest row. Defined here (rather than
// in package digest) so the formatter has no dependency on the collector,
// keeping the engine -> {collector, formatter} dependency one-directional.
type Entry struct {
	ChatID     int64
	MsgID      int64
	ChatTitle  string
	SenderID   int64
	SenderName string

	MessageText string

	EffectiveScore float32
	KeywordScore   float32
	SemanticScores map[string]float32

	MatchedProfiles    []string
	TriggerAnnotations map[string][]string

	IsVIP bool

	CreatedAt time.Time
}

// Header carries the cadence/profile-group metadata shown above the
// ranked entries.
type Header struct {
	Schedule    string
	ProfileName string // label for the profile/entity group this digest covers
	EntryCount  int
	WindowStart time.Time
	WindowEnd   time.Time
}

// Render produces the digest body as a single un-chunked string.
func Render(h Header, entries []Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📋 %s digest — %s\n", strings.ToUpper(h.Schedule), h.ProfileName)
	fmt.Fprintf(&b, "%d message(s), %s – %s\n\n",
		h.EntryCount, h.WindowStart.Format("15:04 MST"), h.WindowEnd.Format("15:04 MST"))

	for i, e := range entries {
		fmt.Fprintf(&b, "%d. [%s](chat:%d) — %s\n", i+1, escapeTitle(e.ChatTitle), e.ChatID, e.SenderName)
		if e.IsVIP {
			b.WriteString("   ⭐ VIP\n")
		}
		b.WriteString("   " + truncate(e.MessageText, 280) + "\n")
		fmt.Fprintf(&b, "   score %.2f (keyword %.2f%s)\n", e.EffectiveScore, e.KeywordScore, semanticSuffix(e.SemanticScores))
		if len(e.TriggerAnnotations) > 0 {
			b.WriteString("   triggers: " + formatTriggers(e.TriggerAnnotations) + "\n")
		}
		fmt.Fprintf(&b, "   source: msg %d\n\n", e.MsgID)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func semanticSuffix(scores map[string]float32) string {
	if len(scores) == 0 {
		return ""
	}
	var best float32
	for _, v := range scores {
		if v > best {
			best = v
		}
	}
	return fmt.Sprintf(", semantic %.2f", best)
}

func formatTriggers(ann map[string][]string) string {
	cats := make([]string, 0, len(ann))
	for c := range ann {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		parts = append(parts, fmt.Sprintf("%s(%s)", c, strings.Join(ann[c], ", ")))
	}
	return strings.Join(parts, "; ")
}

func escapeTitle(title string) string {
	return strings.ReplaceAll(strings.ReplaceAll(title, "[", "("), "]", ")")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// Chunk splits body into parts no larger than maxChunkSize, breaking only at
// newline boundaries, and prefixes each part with "[Part i/N]" when more
// than one part is produced. Room for that label is reserved on every
// split, so a labeled part still fits in maxChunkSize; a single line longer
// than the limit is not broken up.
func Chunk(body string) []string {
	// partLabelReserve covers a label up to "[Part 999/999]\n".
	const partLabelReserve = 16
	lines := strings.Split(body, "\n")

	var rawChunks []string
	var cur strings.Builder
	for _, line := range lines {
		if cur.Len()+len(line)+1 > maxChunkSize-partLabelReserve && cur.Len() > 0 {
			rawChunks = append(rawChunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		rawChunks = append(rawChunks, cur.String())
	}
	if len(rawChunks) == 0 {
		rawChunks = []string{""}
	}

	if len(rawChunks) == 1 {
		return rawChunks
	}
	out := make([]string, len(rawChunks))
	for i, c := range rawChunks {
		out[i] = fmt.Sprintf("[Part %d/%d]\n%s", i+1, len(rawChunks), c)
	}
	return out
}
