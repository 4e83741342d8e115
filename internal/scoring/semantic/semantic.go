// Package semantic implements the C6 evaluator: per-profile embedding
// centroids, cosine similarity scoring, and the interest-profile matching
// pass the worker runs alongside the heuristic evaluator.
package semantic

import (
	"context"
	"log/slog"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/redoracle/tgsentinel/internal/config"
)

const (
	feedbackSampleWeight = 0.4
	baseSampleWeight     = 1.0
	defaultNegativeWeight = 0.3
)

// FeedbackSample augments a profile's positive samples with text drawn
// from accepted user feedback (spec.md §4.6: "feedback-augmented positive
// samples, weight 0.4 vs 1.0 base").
type FeedbackSample struct {
	Text     string
	Positive bool
}

// SampleSource supplies the feedback-derived samples a centroid recompute
// needs, decoupling this package from the store.
type SampleSource interface {
	SamplesForProfile(ctx context.Context, profileID string) ([]FeedbackSample, error)
}

// Evaluator computes and caches per-profile centroids and scores text
// against them.
type Evaluator struct {
	embedder Embedder
	samples  SampleSource

	mu        sync.Mutex
	centroids *lru.Cache[string, []float32]
}

// New builds an Evaluator. embedder may be nil — every score then degrades
// to "none" rather than erroring, per spec.md §4.6/§7.
func New(embedder Embedder, samples SampleSource, cacheSize int) (*Evaluator, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Evaluator{embedder: embedder, samples: samples, centroids: cache}, nil
}

// InvalidateProfile drops a cached centroid, forcing recomputation on next
// use. Called by the feedback batch processor (C7) after new samples land.
func (e *Evaluator) InvalidateProfile(profileID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.centroids.Remove(profileID)
}

// centroidFor returns the cached centroid for a profile, computing and
// caching it on a miss.
func (e *Evaluator) centroidFor(ctx context.Context, profile config.ProfileDefinition) ([]float32, bool) {
	e.mu.Lock()
	if v, ok := e.centroids.Get(profile.ID); ok {
		e.mu.Unlock()
		return v, true
	}
	e.mu.Unlock()

	centroid, ok := e.computeCentroid(ctx, profile)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	e.centroids.Add(profile.ID, centroid)
	e.mu.Unlock()
	return centroid, true
}

// computeCentroid builds the L2-normalized mean of positive sample
// embeddings (base + feedback-augmented, weighted per spec.md §4.6),
// then subtracts the negative centroid scaled by defaultNegativeWeight.
func (e *Evaluator) computeCentroid(ctx context.Context, profile config.ProfileDefinition) ([]float32, bool) {
	if e.embedder == nil {
		return nil, false
	}

	var posSum []float32
	var posWeight float64

	for _, text := range profile.PositiveSamples {
		vec, err := e.embedder.Embed(ctx, text)
		if err != nil {
			slog.Warn("semantic: embed positive sample failed", "profile_id", profile.ID, "error", err)
			continue
		}
		posSum = accumulate(posSum, vec, baseSampleWeight)
		posWeight += baseSampleWeight
	}

	if e.samples != nil {
		fb, err := e.samples.SamplesForProfile(ctx, profile.ID)
		if err != nil {
			slog.Warn("semantic: load feedback samples failed", "profile_id", profile.ID, "error", err)
		}
		for _, s := range fb {
			if !s.Positive {
				continue
			}
			vec, err := e.embedder.Embed(ctx, s.Text)
			if err != nil {
				continue
			}
			posSum = accumulate(posSum, vec, feedbackSampleWeight)
			posWeight += feedbackSampleWeight
		}
	}

	if posWeight == 0 || posSum == nil {
		return nil, false
	}
	scale(posSum, 1/posWeight)

	if negCentroid, ok := e.negativeCentroid(ctx, profile); ok {
		negWeight := float32(defaultNegativeWeight)
		for i := range posSum {
			posSum[i] -= negWeight * negCentroid[i]
		}
	}

	return normalize(posSum), true
}

func (e *Evaluator) negativeCentroid(ctx context.Context, profile config.ProfileDefinition) ([]float32, bool) {
	if len(profile.NegativeSamples) == 0 {
		return nil, false
	}
	var sum []float32
	var n float64
	for _, text := range profile.NegativeSamples {
		vec, err := e.embedder.Embed(ctx, text)
		if err != nil {
			continue
		}
		sum = accumulate(sum, vec, 1.0)
		n++
	}
	if n == 0 || sum == nil {
		return nil, false
	}
	scale(sum, 1/n)
	return sum, true
}

// ScoreText returns cosine similarity in [-1, 1], or ok=false when the
// embedding backend is absent or the profile has no computable centroid —
// "degrades gracefully" per spec.md §4.6.
func (e *Evaluator) ScoreText(ctx context.Context, text string, profile config.ProfileDefinition) (float32, bool) {
	if e.embedder == nil {
		return 0, false
	}
	centroid, ok := e.centroidFor(ctx, profile)
	if !ok {
		return 0, false
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("semantic: embed message text failed", "profile_id", profile.ID, "error", err)
		return 0, false
	}
	return cosineSimilarity(vec, centroid), true
}

// InterestResult is evaluate_interest_profiles' output (spec.md §4.6).
type InterestResult struct {
	SemanticScores        map[string]float32
	MatchedProfileIDs     []string
	ShouldIncludeInFeed   bool
	ShouldIncludeInDigest bool
}

// EvaluateInterestProfiles scores text against every bound semantic
// profile and reports which ones matched.
func (e *Evaluator) EvaluateInterestProfiles(ctx context.Context, text string, profiles []config.ProfileDefinition) InterestResult {
	res := InterestResult{SemanticScores: map[string]float32{}}
	for _, p := range profiles {
		if !p.IsSemantic() {
			continue
		}
		score, ok := e.ScoreText(ctx, text, p)
		if !ok {
			continue
		}
		res.SemanticScores[p.ID] = score
		if score >= p.Threshold {
			res.MatchedProfileIDs = append(res.MatchedProfileIDs, p.ID)
			res.ShouldIncludeInFeed = true
			if p.Digest != nil && (p.Digest.Mode == config.ModeDigest || p.Digest.Mode == config.ModeBoth) {
				res.ShouldIncludeInDigest = true
			}
		}
	}
	return res
}

// --- vector math -----------------------------------------------------------

func accumulate(sum, vec []float32, weight float64) []float32 {
	if sum == nil {
		sum = make([]float32, len(vec))
	}
	w := float32(weight)
	for i, v := range vec {
		if i >= len(sum) {
			break
		}
		sum[i] += v * w
	}
	return sum
}

func scale(vec []float32, factor float64) {
	f := float32(factor)
	for i := range vec {
		vec[i] *= f
	}
}

func normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
