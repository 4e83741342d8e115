package format

import (
	"strings"
	"testing"
	"time"
)

func TestRenderIncludesEntryDetails(t *testing.T) {
	entries := []Entry{
		{
			ChatID: -100, MsgID: 7, ChatTitle: "Ops Room", SenderName: "alice",
			MessageText: "we found a security breach", EffectiveScore: 2.6, KeywordScore: 2.6,
			MatchedProfiles:    []string{"security"},
			TriggerAnnotations: map[string][]string{"security": {"breach"}},
			IsVIP:              true,
			CreatedAt:          time.Now(),
		},
	}
	body := Render(Header{Schedule: "hourly", ProfileName: "Ops Room", EntryCount: 1}, entries)

	if !strings.Contains(body, "Ops Room") {
		t.Errorf("expected rendered body to include chat title, got %q", body)
	}
	if !strings.Contains(body, "VIP") {
		t.Errorf("expected VIP marker for VIP sender")
	}
	if !strings.Contains(body, "security(breach)") {
		t.Errorf("expected trigger annotations grouped by category, got %q", body)
	}
}

func TestChunkSplitsAtLineBoundariesUnderLimit(t *testing.T) {
	line := strings.Repeat("x", 100) + "\n"
	body := strings.Repeat(line, 50) // ~5050 chars, over the 4096 limit

	chunks := Chunk(body)
	if len(chunks) < 2 {
		t.Fatalf("expected body over the platform limit to be split into multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > maxChunkSize+32 { // allow for the "[Part i/N]\n" label prefix
			t.Errorf("chunk %d exceeds max size: %d", i, len(c))
		}
		if !strings.HasPrefix(c, "[Part ") {
			t.Errorf("chunk %d missing part label: %q", i, c[:20])
		}
	}
}

func TestChunkSingleChunkHasNoPartLabel(t *testing.T) {
	chunks := Chunk("short body")
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk for a short body, got %d", len(chunks))
	}
	if strings.Contains(chunks[0], "[Part") {
		t.Errorf("expected no part label when only one chunk is produced")
	}
}
