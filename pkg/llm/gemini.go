package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/log"
)

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

type geminiClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// newGeminiClient 不设置 http.Client 超时，超时由调用方的 context 控制。
func newGeminiClient(cfg config.LLMConfig) *geminiClient {
	return &geminiClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *geminiClient) Model() string { return c.cfg.Model }

func (c *geminiClient) buildRequest(prompt string) geminiRequest {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	// 零值不下发，交给服务端默认值
	gen := c.cfg.Generation
	if gen.Temperature != 0 {
		t := gen.Temperature
		req.GenerationConfig.Temperature = &t
	}
	if gen.TopP != 0 {
		p := gen.TopP
		req.GenerationConfig.TopP = &p
	}
	if gen.TopK != 0 {
		k := gen.TopK
		req.GenerationConfig.TopK = &k
	}
	if gen.MaxOutputTokens != 0 {
		m := gen.MaxOutputTokens
		req.GenerationConfig.MaxOutputTokens = &m
	}
	if c.cfg.SafetyThreshold != "" {
		for _, category := range harmCategories {
			req.SafetySettings = append(req.SafetySettings, geminiSafetySetting{Category: category, Threshold: c.cfg.SafetyThreshold})
		}
	}
	return req
}

func (c *geminiClient) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/v1beta/" + strings.TrimLeft(path, "/")
}

// Generate calls {model}:generateContent once.
func (c *geminiClient) Generate(ctx context.Context, prompt string) (*Response, error) {
	reqBytes, err := json.Marshal(c.buildRequest(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.Model+":generateContent"), bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	log.Debugf("[LLMClient] 调用 generateContent, model: %s, prompt_len: %d", c.cfg.Model, len(prompt))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call generate api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode generate response: %w", err)
	}
	return gr.toResponse()
}

func (gr geminiResponse) toResponse() (*Response, error) {
	if len(gr.Candidates) == 0 {
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			reason := gr.PromptFeedback.BlockReason
			if reason == "SAFETY" || reason == "PROHIBITED_CONTENT" || reason == "BLOCKLIST" {
				reason = FinishSafety
			}
			return &Response{FinishReason: reason}, nil
		}
		return nil, fmt.Errorf("generate response has no candidates")
	}

	cand := gr.Candidates[0]
	out := &Response{FinishReason: cand.FinishReason}
	if out.FinishReason == "" {
		out.FinishReason = FinishUnspecified
	}
	if cand.Content != nil && len(cand.Content.Parts) > 0 {
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		out.HasContent = true
		out.Text = sb.String()
	}
	return out, nil
}

type geminiModelList struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}

// ListModels returns every model that supports generateContent.
func (c *geminiClient) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	pageToken := ""
	for {
		u := c.endpoint("models")
		if pageToken != "" {
			u += "?pageToken=" + url.QueryEscape(pageToken)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create list models request: %w", err)
		}
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to call list models api: %w", err)
		}
		var page geminiModelList
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode list models response: %w", err)
		}

		for _, m := range page.Models {
			for _, method := range m.SupportedGenerationMethods {
				if method == "generateContent" {
					names = append(names, m.Name)
					break
				}
			}
		}
		if page.NextPageToken == "" {
			return names, nil
		}
		pageToken = page.NextPageToken
	}
}
