package generator

import (
	"strings"
	"unicode/utf8"

	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/llm"
)

// Outcome is what the model produced for one request, after the fixed
// fallback messages have been substituted.
type Outcome struct {
	Response *llm.Response
	Answer   string
}

// ConfidencePolicy scores an answer the model actually responded to.
// Shortcut answers and failures never reach a policy.
type ConfidencePolicy interface {
	Confidence(query string, chunks []model.RetrievalResult, outcome Outcome) float64
}

// ConstantConfidence returns the same score for every answer.
type ConstantConfidence float64

func (c ConstantConfidence) Confidence(string, []model.RetrievalResult, Outcome) float64 {
	return clamp(float64(c))
}

// MeanPositiveConfidence averages the retrieval scores that are above zero.
// With no positive score the confidence is 0.
type MeanPositiveConfidence struct{}

func (MeanPositiveConfidence) Confidence(_ string, chunks []model.RetrievalResult, _ Outcome) float64 {
	var sum float64
	var n int
	for _, c := range chunks {
		if c.RetrievalScore > 0 {
			sum += c.RetrievalScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return clamp(sum / float64(n))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ShortcutRule answers a query with a fixed text when it contains any of the
// keywords. Matching is case sensitive.
type ShortcutRule struct {
	Keywords   []string
	Answer     string
	Confidence float64
}

// Match reports whether the rule applies to query.
func (r *ShortcutRule) Match(query string) bool {
	if r == nil {
		return false
	}
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(query, kw) {
			return true
		}
	}
	return false
}

// ContextLimit caps the joined context at MaxChars runes. Chunks are kept
// whole and in order; the first chunk that does not fit ends the context.
type ContextLimit struct {
	MaxChars int
}

// Apply returns the prefix of chunks that fits the limit.
func (l ContextLimit) Apply(chunks []model.RetrievalResult) []model.RetrievalResult {
	if l.MaxChars <= 0 {
		return chunks
	}
	used := 0
	for i, c := range chunks {
		size := utf8.RuneCountInString(c.ChunkText)
		if i > 0 {
			size += len(contextSeparator)
		}
		if used+size > l.MaxChars {
			return chunks[:i]
		}
		used += size
	}
	return chunks
}
