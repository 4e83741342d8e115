package semantic

import (
	"context"
	"strings"
	"testing"

	"github.com/redoracle/tgsentinel/internal/config"
)

// fakeEmbedder maps words to fixed basis-vector weights so cosine
// similarity is predictable without a network call.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	// Dimension 0 ~ "security"-ish, dimension 1 ~ "lunch"-ish.
	vec := make([]float32, 2)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "breach") || strings.Contains(lower, "incident") {
		vec[0] = 1
	}
	if strings.Contains(lower, "lunch") || strings.Contains(lower, "coffee") {
		vec[1] = 1
	}
	if vec[0] == 0 && vec[1] == 0 {
		vec[0] = 0.01 // avoid an all-zero vector
	}
	return vec, nil
}

func TestScoreTextMatchesPositiveCluster(t *testing.T) {
	ev, err := New(fakeEmbedder{}, nil, 8)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	profile := config.ProfileDefinition{
		ID:              "security-watch",
		PositiveSamples: []string{"security breach detected", "active incident"},
		Threshold:       0.5,
	}

	score, ok := ev.ScoreText(context.Background(), "we have a breach in prod", profile)
	if !ok {
		t.Fatalf("expected a score, embedder is present")
	}
	if score < 0.9 {
		t.Fatalf("expected high similarity for matching cluster, got %v", score)
	}

	offTopic, ok := ev.ScoreText(context.Background(), "let's grab lunch", profile)
	if !ok {
		t.Fatalf("expected a score for off-topic text too")
	}
	if offTopic > 0.1 {
		t.Fatalf("expected low similarity for off-topic text, got %v", offTopic)
	}
}

func TestScoreTextDegradesGracefullyWithoutEmbedder(t *testing.T) {
	ev, err := New(nil, nil, 8)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	_, ok := ev.ScoreText(context.Background(), "anything", config.ProfileDefinition{ID: "x"})
	if ok {
		t.Fatalf("expected ok=false when no embedding backend is configured")
	}
}

func TestEvaluateInterestProfilesMatchesAboveThreshold(t *testing.T) {
	ev, err := New(fakeEmbedder{}, nil, 8)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	profiles := []config.ProfileDefinition{
		{ID: "security-watch", PositiveSamples: []string{"security breach"}, Threshold: 0.5,
			Digest: &config.ProfileDigestConfig{Mode: config.ModeDigest}},
		{ID: "lunch-chat", PositiveSamples: []string{"lunch plans"}, Threshold: 0.5},
		{ID: "keyword-only", Keywords: map[string][]string{"general": {"x"}}}, // not semantic
	}

	res := ev.EvaluateInterestProfiles(context.Background(), "urgent: breach in prod", profiles)

	if !res.ShouldIncludeInFeed {
		t.Fatalf("expected a feed match")
	}
	if !res.ShouldIncludeInDigest {
		t.Fatalf("expected digest inclusion via security-watch's digest mode")
	}
	found := false
	for _, id := range res.MatchedProfileIDs {
		if id == "security-watch" {
			found = true
		}
		if id == "keyword-only" {
			t.Fatalf("keyword-only profile must never be scored semantically")
		}
	}
	if !found {
		t.Fatalf("expected security-watch in matched profiles, got %v", res.MatchedProfileIDs)
	}
}

func TestInvalidateProfileForcesRecompute(t *testing.T) {
	ev, err := New(fakeEmbedder{}, nil, 8)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	profile := config.ProfileDefinition{ID: "p1", PositiveSamples: []string{"breach"}, Threshold: 0.5}

	if _, ok := ev.ScoreText(context.Background(), "breach", profile); !ok {
		t.Fatalf("expected initial score")
	}
	if _, ok := ev.centroids.Get("p1"); !ok {
		t.Fatalf("expected centroid to be cached")
	}
	ev.InvalidateProfile("p1")
	if _, ok := ev.centroids.Get("p1"); ok {
		t.Fatalf("expected centroid cache to be cleared after invalidation")
	}
}
