package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/drivevectorai/backend/internal/core"
)

// OpenAIEmbedder targets any OpenAI-compatible embeddings endpoint
// (OpenAI itself, or a local server exposing the same API).
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	dim      int
}

func NewOpenAIEmbedder(baseURL, apiKey, model string, dim int) (*OpenAIEmbedder, error) {
	opts := []openai.Option{openai.WithEmbeddingModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, openai.WithToken(apiKey))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	if dim <= 0 {
		dim = 1536
	}
	return &OpenAIEmbedder{embedder: embedder, dim: dim}, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dim }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("openai embed: empty embedding")
	}
	return vecs[0], nil
}

var _ core.Embedder = (*OpenAIEmbedder)(nil)
