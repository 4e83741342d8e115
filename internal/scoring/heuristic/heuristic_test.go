package heuristic

import (
	"testing"

	"github.com/redoracle/tgsentinel/internal/ingest"
	"github.com/redoracle/tgsentinel/internal/resolver"
)

func TestEvaluateMentionVIPReactionsReplies(t *testing.T) {
	ev := ingest.ChatEvent{ChatID: 1, SenderID: 42, Text: "hello", Mentioned: true, ReactionsCount: 5, RepliesCount: 3}
	rp := resolver.ResolvedProfile{VIPSenders: []int64{42}}

	res := Evaluate(ev, rp, nil, 2, 2)

	// Summed in float32 in Evaluate's order, as Evaluate accumulates it.
	var want float32
	for _, w := range []float32{weightMentioned, weightVIP, weightReactions, weightReplies} {
		want += w
	}
	if res.PreScore != want {
		t.Fatalf("expected pre_score %v, got %v (reasons=%v)", want, res.PreScore, res.Reasons)
	}
}

func TestEvaluateKeywordCategoryAnnotations(t *testing.T) {
	ev := ingest.ChatEvent{Text: "we have a security breach and an urgent decision to make"}
	rp := resolver.ResolvedProfile{
		Keywords: map[string][]string{
			"security": {"breach"},
			"urgency":  {"urgent"},
		},
		ScoringWeights: map[string]float32{"security": 2.0, "urgency": 1.5},
	}

	res := Evaluate(ev, rp, nil, 0, 0)

	if res.PreScore != 3.5 {
		t.Fatalf("expected pre_score 3.5 from two category matches, got %v", res.PreScore)
	}
	if len(res.TriggerAnnotations["security"]) != 1 || res.TriggerAnnotations["security"][0] != "breach" {
		t.Fatalf("expected security annotation [breach], got %v", res.TriggerAnnotations["security"])
	}
}

func TestEvaluateRequireForwardedDropsNonForwarded(t *testing.T) {
	ev := ingest.ChatEvent{Text: "important", HasForward: false}
	rp := resolver.ResolvedProfile{RequireForwarded: true}

	res := Evaluate(ev, rp, nil, 0, 0)

	if !res.Dropped {
		t.Fatalf("expected require_forwarded to drop a non-forwarded event")
	}
}

func TestDetectCodePatternsMatchesOriginalTestCases(t *testing.T) {
	cases := []struct {
		text string
		want bool
		desc string
	}{
		{"EVM", false, "single word"},
		{"API", false, "single word"},
		{"Check the token", false, "word in sentence"},
		{"OTP: 123456", false, "single line OTP"},
		{"```python\nprint('hello')\n```", true, "code fence"},
		{"function test() {\n  return 5;\n}", true, "JS function"},
		{"    line1\n    line2\n    line3\n    line4", true, "indentation"},
	}
	for _, c := range cases {
		got := detectCodePatterns(c.text)
		if got != c.want {
			t.Errorf("%s: detectCodePatterns(%q) = %v, want %v", c.desc, c.text, got, c.want)
		}
	}
}

func TestEvaluateDetectLinksAndDocuments(t *testing.T) {
	rp := resolver.ResolvedProfile{DetectLinks: true, DetectDocuments: true}

	linkEv := ingest.ChatEvent{Text: "see https://example.com/report"}
	if res := Evaluate(linkEv, rp, nil, 0, 0); res.PreScore != weightLinks {
		t.Fatalf("expected detect_links score %v, got %v", weightLinks, res.PreScore)
	}

	docEv := ingest.ChatEvent{HasMedia: true, MediaType: "document"}
	if res := Evaluate(docEv, rp, nil, 0, 0); res.PreScore != weightDocuments {
		t.Fatalf("expected detect_documents score %v, got %v", weightDocuments, res.PreScore)
	}
}

func TestContentHashIsDeterministic(t *testing.T) {
	a := ContentHash("same text")
	b := ContentHash("same text")
	if a != b {
		t.Fatalf("expected identical content_hash for identical text")
	}
	if a == ContentHash("different text") {
		t.Fatalf("expected different content_hash for different text")
	}
}
