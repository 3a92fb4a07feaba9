package generator

import (
	"strings"

	"faq-rag-go/internal/model"
)

const contextSeparator = "\n\n"

// BuildPrompt 把检索到的片段按原顺序用空行拼接成上下文，
// 再附上问题和留给模型填写的答案位。
func BuildPrompt(query string, chunks []model.RetrievalResult) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.ChunkText
	}

	var sb strings.Builder
	sb.WriteString("\nالسياق:\n---\n")
	sb.WriteString(strings.Join(texts, contextSeparator))
	sb.WriteString("\n---\n\nالسؤال: ")
	sb.WriteString(query)
	sb.WriteString("\n\nالإجابة:\n")
	return sb.String()
}
