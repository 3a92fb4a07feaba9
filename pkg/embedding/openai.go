package embedding

import (
	"context"
	"fmt"
	"strings"

	"faq-rag-go/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// openAIClient uses the OpenAI embeddings API (or any compatible server).
type openAIClient struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIClient creates an OpenAI embedder. An empty BaseURL keeps the SDK default.
func NewOpenAIClient(cfg config.EmbeddingConfig) Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		dim:    cfg.Dimensions,
	}
}

func (e *openAIClient) Load(ctx context.Context) error {
	return loadProbe(ctx, e)
}

func (e *openAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *openAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.model),
		Input:      texts,
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai returned out-of-range embedding index %d", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		vectors[d.Index] = v
	}
	if err := finish(vectors, e.dim); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *openAIClient) Dimensions() int   { return e.dim }
func (e *openAIClient) ModelName() string { return e.model }
