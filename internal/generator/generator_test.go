package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"faq-rag-go/internal/config"
	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/llm"
)

type result struct {
	resp *llm.Response
	err  error
}

// scriptedClient returns the scripted results in order, repeating the last.
type scriptedClient struct {
	mu      sync.Mutex
	script  []result
	prompts []string
	block   bool
}

func (c *scriptedClient) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	i := len(c.prompts) - 1
	c.mu.Unlock()
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if i >= len(c.script) {
		i = len(c.script) - 1
	}
	return c.script[i].resp, c.script[i].err
}

func (c *scriptedClient) ListModels(context.Context) ([]string, error) { return nil, nil }
func (c *scriptedClient) Model() string                                { return "fake-model" }

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func chunks(scores ...float64) []model.RetrievalResult {
	out := make([]model.RetrievalResult, len(scores))
	for i, s := range scores {
		out[i] = model.RetrievalResult{
			Chunk:          model.Chunk{ID: string(rune('a' + i)), ChunkText: "نص " + string(rune('a'+i))},
			RetrievalScore: s,
		}
	}
	return out
}

func defaultOptions() Options {
	return Options{
		Timeout:    time.Second,
		MaxRetries: 2,
		Shortcut: &ShortcutRule{
			Keywords:   []string{"إرجاع", "Return"},
			Answer:     "fixed answer",
			Confidence: 0.95,
		},
		Confidence: ConstantConfidence(0.85),
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("سؤالي", []model.RetrievalResult{
		{Chunk: model.Chunk{ChunkText: "الأول"}},
		{Chunk: model.Chunk{ChunkText: "الثاني"}},
	})
	want := "\nالسياق:\n---\nالأول\n\nالثاني\n---\n\nالسؤال: سؤالي\n\nالإجابة:\n"
	if prompt != want {
		t.Errorf("BuildPrompt() = %q, want %q", prompt, want)
	}
	for _, part := range []string{"السياق:", "الأول", "السؤال: سؤالي", "الإجابة:"} {
		if !strings.Contains(prompt, part) {
			t.Errorf("prompt missing %q", part)
		}
	}
}

func TestBuildPrompt_NoChunks(t *testing.T) {
	want := "\nالسياق:\n---\n\n---\n\nالسؤال: q\n\nالإجابة:\n"
	for name, chunks := range map[string][]model.RetrievalResult{
		"nil":   nil,
		"empty": {},
	} {
		if got := BuildPrompt("q", chunks); got != want {
			t.Errorf("%s: BuildPrompt() = %q, want %q", name, got, want)
		}
	}
}

func TestGenerate_Shortcut(t *testing.T) {
	client := &scriptedClient{script: []result{{err: errors.New("must not be called")}}}
	g := New(client, defaultOptions())

	for _, q := range []string{"ما هي سياسة الإرجاع؟", "Return policy please"} {
		got, err := g.Generate(context.Background(), q, nil)
		if err != nil {
			t.Fatalf("Generate(%q) error = %v", q, err)
		}
		if got.Answer != "fixed answer" || got.ConfidenceScore != 0.95 {
			t.Errorf("Generate(%q) = %+v", q, got)
		}
	}
	if client.calls() != 0 {
		t.Errorf("model called %d times, want 0", client.calls())
	}

	// The shortcut also answers when the model is unavailable.
	unavailable := New(nil, defaultOptions())
	if got, err := unavailable.Generate(context.Background(), "Return?", nil); err != nil || got.Answer != "fixed answer" {
		t.Errorf("shortcut on unavailable generator = %+v, %v", got, err)
	}
}

func TestGenerate_ShortcutDisabled(t *testing.T) {
	client := &scriptedClient{script: []result{{resp: &llm.Response{HasContent: true, Text: "from model", FinishReason: llm.FinishStop}}}}
	opts := defaultOptions()
	opts.Shortcut = nil
	got, _ := New(client, opts).Generate(context.Background(), "Return policy", chunks(0.5))
	if got.Answer != "from model" {
		t.Errorf("answer = %q, want model answer", got.Answer)
	}
}

func TestGenerate_ModelUnavailable(t *testing.T) {
	g := New(nil, defaultOptions())
	if g.Ready() {
		t.Fatal("generator without client should not be ready")
	}
	_, err := g.Generate(context.Background(), "سؤال عادي", chunks(0.5))
	var mue *ModelUnavailableError
	if !errors.As(err, &mue) || !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("error = %v, want ModelUnavailableError", err)
	}
}

func TestNewFromConfig_MissingKey(t *testing.T) {
	g := NewFromConfig(config.LLMConfig{Provider: "gemini", Model: "models/gemini-1.5-flash"}, config.AnswerConfig{})
	if g.Ready() {
		t.Fatal("generator without api key should not be ready")
	}
	if g.Model() != "models/gemini-1.5-flash" {
		t.Errorf("Model() = %q", g.Model())
	}
	_, err := g.Generate(context.Background(), "q", nil)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("error = %v, want ErrModelUnavailable", err)
	}
}

func TestGenerate_ResponseInterpretation(t *testing.T) {
	tests := []struct {
		name string
		resp *llm.Response
		want string
	}{
		{"trimmed text", &llm.Response{HasContent: true, Text: "  جواب  \n", FinishReason: llm.FinishStop}, "جواب"},
		{"whitespace only", &llm.Response{HasContent: true, Text: " \n\t", FinishReason: llm.FinishStop}, MsgInsufficientInfo},
		{"safety block", &llm.Response{FinishReason: llm.FinishSafety}, MsgSafetyBlocked},
		{"other reason", &llm.Response{FinishReason: llm.FinishRecitation}, MsgUnknownReason},
		{"unspecified", &llm.Response{FinishReason: llm.FinishUnspecified}, MsgUnknownReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{script: []result{{resp: tt.resp}}}
			got, err := New(client, defaultOptions()).Generate(context.Background(), "سؤال", chunks(0.4))
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if got.Answer != tt.want {
				t.Errorf("answer = %q, want %q", got.Answer, tt.want)
			}
			if got.ConfidenceScore != 0.85 {
				t.Errorf("confidence = %v, want 0.85", got.ConfidenceScore)
			}
		})
	}
}

func TestGenerate_FailureIsSwallowed(t *testing.T) {
	client := &scriptedClient{script: []result{{err: errors.New("malformed response")}}}
	got, err := New(client, defaultOptions()).Generate(context.Background(), "سؤال", chunks(0.9))
	if err != nil {
		t.Fatalf("Generate() error = %v, want nil", err)
	}
	if got.Answer != MsgFailure || got.ConfidenceScore != 0 {
		t.Errorf("Generate() = %+v, want failure message with 0 confidence", got)
	}
	if client.calls() != 1 {
		t.Errorf("non-retryable error retried: %d calls", client.calls())
	}
}

func TestGenerate_RetriesRetryableErrors(t *testing.T) {
	client := &scriptedClient{script: []result{
		{err: &llm.APIError{StatusCode: 503}},
		{err: &llm.APIError{StatusCode: 429}},
		{resp: &llm.Response{HasContent: true, Text: "ok", FinishReason: llm.FinishStop}},
	}}
	got, _ := New(client, defaultOptions()).Generate(context.Background(), "سؤال", nil)
	if got.Answer != "ok" {
		t.Errorf("answer = %q, want ok", got.Answer)
	}
	if client.calls() != 3 {
		t.Errorf("calls = %d, want 3", client.calls())
	}
}

func TestGenerate_RetriesExhausted(t *testing.T) {
	client := &scriptedClient{script: []result{{err: &llm.APIError{StatusCode: 500}}}}
	opts := defaultOptions()
	opts.MaxRetries = 1
	got, _ := New(client, opts).Generate(context.Background(), "سؤال", nil)
	if got.Answer != MsgFailure || got.ConfidenceScore != 0 {
		t.Errorf("Generate() = %+v", got)
	}
	if client.calls() != 2 {
		t.Errorf("calls = %d, want 2", client.calls())
	}
}

func TestGenerate_Timeout(t *testing.T) {
	client := &scriptedClient{block: true}
	opts := defaultOptions()
	opts.Timeout = 20 * time.Millisecond
	opts.MaxRetries = 0

	start := time.Now()
	got, err := New(client, opts).Generate(context.Background(), "سؤال", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Answer != MsgFailure {
		t.Errorf("answer = %q, want failure message", got.Answer)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestGenerate_ContextLimit(t *testing.T) {
	client := &scriptedClient{script: []result{{resp: &llm.Response{HasContent: true, Text: "x"}}}}
	opts := defaultOptions()
	opts.Context = ContextLimit{MaxChars: 8}
	in := []model.RetrievalResult{
		{Chunk: model.Chunk{ChunkText: "abc"}},
		{Chunk: model.Chunk{ChunkText: "def"}},
		{Chunk: model.Chunk{ChunkText: "ghi"}},
	}
	if _, err := New(client, opts).Generate(context.Background(), "q", in); err != nil {
		t.Fatal(err)
	}
	prompt := client.prompts[0]
	if !strings.Contains(prompt, "abc\n\ndef") || strings.Contains(prompt, "ghi") {
		t.Errorf("prompt context not limited: %q", prompt)
	}
}

func TestContextLimit_Apply(t *testing.T) {
	in := []model.RetrievalResult{
		{Chunk: model.Chunk{ChunkText: "سؤال"}}, // 4 runes
		{Chunk: model.Chunk{ChunkText: "جواب"}},
	}
	tests := []struct {
		max  int
		want int
	}{
		{0, 2},
		{3, 0},
		{4, 1},
		{9, 1},
		{10, 2},
	}
	for _, tt := range tests {
		if got := (ContextLimit{MaxChars: tt.max}).Apply(in); len(got) != tt.want {
			t.Errorf("Apply(max=%d) kept %d chunks, want %d", tt.max, len(got), tt.want)
		}
	}
}

func TestConfidencePolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy ConfidencePolicy
		chunks []model.RetrievalResult
		want   float64
	}{
		{"constant", ConstantConfidence(0.85), chunks(0.1), 0.85},
		{"constant clamped", ConstantConfidence(1.5), nil, 1},
		{"mean of positives", MeanPositiveConfidence{}, chunks(0.8, 0.4, -0.3), 0.6},
		{"no positives", MeanPositiveConfidence{}, chunks(-0.2, 0), 0},
		{"empty", MeanPositiveConfidence{}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Confidence("q", tt.chunks, Outcome{})
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Confidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(
		config.LLMConfig{Timeout: 30 * time.Second, MaxRetries: 2, RetryBaseDelay: 500 * time.Millisecond},
		config.AnswerConfig{
			Confidence: config.ConfidenceConfig{Policy: "mean_positive"},
			Shortcut:   config.ShortcutConfig{Enabled: false},
		},
	)
	if opts.Shortcut != nil {
		t.Error("disabled shortcut should be nil")
	}
	if _, ok := opts.Confidence.(MeanPositiveConfidence); !ok {
		t.Errorf("confidence policy = %T, want MeanPositiveConfidence", opts.Confidence)
	}
	if opts.Timeout != 30*time.Second || opts.MaxRetries != 2 {
		t.Errorf("opts = %+v", opts)
	}
}

func TestBackoff(t *testing.T) {
	base := 500 * time.Millisecond
	for attempt := 1; attempt <= 8; attempt++ {
		nominal := base * time.Duration(1<<uint(attempt-1))
		if nominal > maxBackoff {
			nominal = maxBackoff
		}
		d := Backoff(base, attempt)
		if d < nominal-nominal/4 || d > nominal+nominal/4 {
			t.Errorf("Backoff(attempt=%d) = %v, want within 25%% of %v", attempt, d, nominal)
		}
	}
	if Backoff(0, 3) != 0 || Backoff(base, 0) != 0 {
		t.Error("zero base or attempt should give no delay")
	}
}
