package semantic

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder turns text into a vector. The worker treats an absent embedder
// the same as a backend that errors on every call: semantic scoring
// degrades gracefully (spec.md §4.6, §7's "Embedding backend absent").
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. BaseURL
// lets it target local/self-hosted servers that speak the same API
// (spec.md's EmbeddingsModel config is provider-agnostic).
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIEmbedder(apiKey, baseURL, model string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("semantic: embed: empty response")
	}
	return resp.Data[0].Embedding, nil
}
