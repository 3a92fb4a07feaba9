// Package embedding provides clients that turn text into L2-normalised vectors.
//
// The same Embedder configuration must be used by the offline ingest and by
// the online query path, otherwise distances between the two are meaningless.
package embedding

import (
	"context"
	"fmt"
	"math"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/log"
)

// probeText is embedded by Load to check the model answers with the expected dimension.
const probeText = "ping"

// Embedder defines the interface for an embedding client.
type Embedder interface {
	// Load performs the one-time readiness check against the model backend.
	Load(ctx context.Context) error
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// NewEmbedder creates an embedder based on the provider in the config.
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "tei":
		return NewTEIClient(cfg), nil
	case "openai":
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// Normalize scales v to unit L2 norm in place. Zero vectors are left unchanged.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// finish normalises every vector and checks the dimension.
func finish(vectors [][]float32, want int) error {
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("unexpected embedding dimensions for input %d: got %d, want %d", i, len(v), want)
		}
		Normalize(v)
	}
	return nil
}

// loadProbe embeds probeText and verifies the backend is reachable.
func loadProbe(ctx context.Context, e Embedder) error {
	log.Infof("[Embedder] 开始加载 embedding 模型: %s (dim=%d)", e.ModelName(), e.Dimensions())
	if _, err := e.Embed(ctx, probeText); err != nil {
		return fmt.Errorf("embedding model %s is not available: %w", e.ModelName(), err)
	}
	log.Infof("[Embedder] embedding 模型加载成功: %s", e.ModelName())
	return nil
}
