// Package generator turns a query and its retrieved context into a final
// answer with a confidence score.
package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"faq-rag-go/internal/config"
	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/llm"
	"faq-rag-go/pkg/log"
)

// Fixed answers used when the model does not produce a usable text.
const (
	MsgInsufficientInfo = "لا أملك معلومات كافية للإجابة من المصادر المتاحة."
	MsgSafetyBlocked    = "لم يتمكن النموذج من توليد إجابة بسبب سياسات السلامة."
	MsgUnknownReason    = "لم يتمكن النموذج من توليد إجابة (سبب غير محدد)."
	MsgFailure          = "عذرًا، تعذر توليد الإجابة حاليًا بسبب خطأ فني."
)

const maxBackoff = 10 * time.Second

// ErrModelUnavailable matches every ModelUnavailableError.
var ErrModelUnavailable = errors.New("generative model unavailable")

// ModelUnavailableError means the model client could not be initialised at
// startup. It is a configuration problem, not a per-request failure.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generative model %s is unavailable", e.Model)
	}
	return fmt.Sprintf("generative model %s is unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

// Options bounds one Generate call.
type Options struct {
	// Timeout applies to each attempt. Zero disables it.
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	// Shortcut is optional.
	Shortcut   *ShortcutRule
	Confidence ConfidencePolicy
	Context    ContextLimit
}

// OptionsFromConfig builds Options from the llm and answer sections.
func OptionsFromConfig(llmCfg config.LLMConfig, answerCfg config.AnswerConfig) Options {
	opts := Options{
		Timeout:        llmCfg.Timeout,
		MaxRetries:     llmCfg.MaxRetries,
		RetryBaseDelay: llmCfg.RetryBaseDelay,
		Context:        ContextLimit{MaxChars: answerCfg.MaxContextChars},
	}
	if answerCfg.Shortcut.Enabled {
		opts.Shortcut = &ShortcutRule{
			Keywords:   answerCfg.Shortcut.Keywords,
			Answer:     answerCfg.Shortcut.Answer,
			Confidence: answerCfg.Shortcut.Confidence,
		}
	}
	switch answerCfg.Confidence.Policy {
	case "mean_positive":
		opts.Confidence = MeanPositiveConfidence{}
	default:
		opts.Confidence = ConstantConfidence(answerCfg.Confidence.Value)
	}
	return opts
}

// Generator is safe for concurrent use.
type Generator struct {
	client  llm.Client
	model   string
	initErr error
	opts    Options
}

// New wraps an initialised client.
func New(client llm.Client, opts Options) *Generator {
	if opts.Confidence == nil {
		opts.Confidence = ConstantConfidence(0.85)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	g := &Generator{client: client, opts: opts}
	if client != nil {
		g.model = client.Model()
	} else {
		g.initErr = errors.New("no model client")
	}
	return g
}

// NewFromConfig creates the client from config. A client that cannot be
// created leaves the generator unavailable rather than failing startup.
func NewFromConfig(llmCfg config.LLMConfig, answerCfg config.AnswerConfig) *Generator {
	opts := OptionsFromConfig(llmCfg, answerCfg)
	client, err := llm.NewClient(llmCfg)
	if err != nil {
		log.Errorf("[Generator] 初始化模型客户端失败, model: %s, error: %v", llmCfg.Model, err)
		g := New(nil, opts)
		g.model = llmCfg.Model
		g.initErr = err
		return g
	}
	log.Infof("[Generator] 模型客户端初始化成功, provider: %s, model: %s", llmCfg.Provider, llmCfg.Model)
	return New(client, opts)
}

// Ready reports whether the model client was initialised.
func (g *Generator) Ready() bool { return g.initErr == nil }

// Model returns the configured model name.
func (g *Generator) Model() string { return g.model }

// Generate 按以下顺序生成答案：关键字直答、模型可用性检查、构造 prompt、
// 调用模型并解释结果。除 ModelUnavailableError 外不返回任何错误，
// 调用失败时返回固定的失败文案和 0 置信度。
func (g *Generator) Generate(ctx context.Context, query string, chunks []model.RetrievalResult) (model.GeneratedAnswer, error) {
	if g.opts.Shortcut.Match(query) {
		log.Info("[Generator] 命中关键字直答规则")
		return model.GeneratedAnswer{
			Answer:          g.opts.Shortcut.Answer,
			ConfidenceScore: clamp(g.opts.Shortcut.Confidence),
		}, nil
	}

	if !g.Ready() {
		return model.GeneratedAnswer{}, &ModelUnavailableError{Model: g.model, Err: g.initErr}
	}

	used := g.opts.Context.Apply(chunks)
	if len(used) < len(chunks) {
		log.Warnf("[Generator] 上下文超出 %d 字符限制, 保留 %d/%d 个片段", g.opts.Context.MaxChars, len(used), len(chunks))
	}
	prompt := BuildPrompt(query, used)

	resp, err := g.invoke(ctx, prompt)
	if err != nil {
		log.Errorf("[Generator] 调用模型失败, model: %s, error: %v", g.model, err)
		return model.GeneratedAnswer{Answer: MsgFailure, ConfidenceScore: 0}, nil
	}

	answer := interpret(resp)
	confidence := g.opts.Confidence.Confidence(query, chunks, Outcome{Response: resp, Answer: answer})
	return model.GeneratedAnswer{Answer: answer, ConfidenceScore: clamp(confidence)}, nil
}

func interpret(resp *llm.Response) string {
	if resp.HasContent {
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return MsgInsufficientInfo
		}
		return text
	}
	log.Warnf("[Generator] 模型未返回内容, finish_reason: %s", resp.FinishReason)
	if resp.FinishReason == llm.FinishSafety {
		return MsgSafetyBlocked
	}
	return MsgUnknownReason
}

// invoke 调用模型，仅对可重试错误按指数退避重试。
func (g *Generator) invoke(ctx context.Context, prompt string) (*llm.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, Backoff(g.opts.RetryBaseDelay, attempt)); err != nil {
				return nil, err
			}
			log.Warnf("[Generator] 第 %d 次重试, 上次错误: %v", attempt, lastErr)
		}

		resp, err := g.attempt(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !llm.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (g *Generator) attempt(ctx context.Context, prompt string) (*llm.Response, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	return g.client.Generate(ctx, prompt)
}

// Backoff returns the delay before retry number attempt (1-based):
// base * 2^(attempt-1), capped at 10s, with ±25% jitter.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	half := int64(backoff) / 2
	if half <= 0 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(half)) - backoff/4
	return backoff + jitter
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
