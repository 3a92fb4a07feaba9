package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"faq-rag-go/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

type openAIClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

func newOpenAIClient(cfg config.LLMConfig) *openAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" && !strings.Contains(cfg.BaseURL, "generativelanguage.googleapis.com") {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAIClient{cfg: cfg, client: openai.NewClientWithConfig(clientCfg)}
}

func (c *openAIClient) Model() string { return c.cfg.Model }

// Generate sends the prompt as a single user message.
func (c *openAIClient) Generate(ctx context.Context, prompt string) (*Response, error) {
	gen := c.cfg.Generation
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(gen.Temperature),
		TopP:        float32(gen.TopP),
		MaxTokens:   gen.MaxOutputTokens,
	})
	if err != nil {
		return nil, translateOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	return &Response{
		HasContent:   choice.Message.Content != "",
		Text:         choice.Message.Content,
		FinishReason: mapOpenAIFinishReason(choice.FinishReason),
	}, nil
}

func mapOpenAIFinishReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonStop:
		return FinishStop
	case openai.FinishReasonLength:
		return FinishMaxTokens
	case openai.FinishReasonContentFilter:
		return FinishSafety
	case "":
		return FinishUnspecified
	default:
		return strings.ToUpper(string(reason))
	}
}

func translateOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("chat completion: %w", err)
}

func (c *openAIClient) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, translateOpenAIError(err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}
