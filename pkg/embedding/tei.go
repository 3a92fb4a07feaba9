package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/log"
)

// teiClient talks to a text-embeddings-inference style server hosting a
// sentence-transformers model.
type teiClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewTEIClient creates an embedder for a self-hosted sentence-transformers server.
func NewTEIClient(cfg config.EmbeddingConfig) Embedder {
	return &teiClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type teiRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
	Truncate  bool     `json:"truncate"`
}

func (c *teiClient) Load(ctx context.Context) error {
	return loadProbe(ctx, c)
}

func (c *teiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch calls POST {base_url}/embed for all texts in one request.
func (c *teiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debugf("[EmbeddingClient] 调用 embed 接口, model: %s, batch: %d", c.cfg.Model, len(texts))

	reqBytes, err := json.Marshal(teiRequest{Inputs: texts, Normalize: true, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/embed", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("embedding api returned non-200 status: %s, body: %s", resp.Status, string(body))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	if err := finish(vectors, c.cfg.Dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *teiClient) Dimensions() int   { return c.cfg.Dimensions }
func (c *teiClient) ModelName() string { return c.cfg.Model }
