// Package llm provides clients for generative language models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"faq-rag-go/internal/config"
)

// Finish reasons, normalised across providers.
const (
	FinishStop        = "STOP"
	FinishMaxTokens   = "MAX_TOKENS"
	FinishSafety      = "SAFETY"
	FinishRecitation  = "RECITATION"
	FinishOther       = "OTHER"
	FinishUnspecified = "FINISH_REASON_UNSPECIFIED"
)

// Response is the raw outcome of one generation call.
type Response struct {
	// HasContent is true when the model returned at least one content part.
	HasContent   bool
	Text         string
	FinishReason string
}

// Client defines the interface for an LLM client.
type Client interface {
	Generate(ctx context.Context, prompt string) (*Response, error)
	// ListModels returns the models that can serve Generate.
	ListModels(ctx context.Context) ([]string, error)
	Model() string
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is empty")
	}
	switch cfg.Provider {
	case "", "gemini":
		return newGeminiClient(cfg), nil
	case "openai":
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// APIError is a non-2xx answer from the model API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api returned status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is worth another attempt: rate limiting,
// server errors, per-attempt timeouts and network failures.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
