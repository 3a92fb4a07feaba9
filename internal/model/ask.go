package model

// Source 是响应中回显的检索来源。
type Source struct {
	ID             string  `json:"id"`
	Source         string  `json:"source"`
	RetrievalScore float64 `json:"retrieval_score"`
}

// Timings 记录各阶段耗时（毫秒）。
type Timings struct {
	RetrievalMs  float64 `json:"retrieval_ms"`
	GenerationMs float64 `json:"generation_ms"`
	TotalMs      float64 `json:"total_ms"`
}

// AskResponse 是 POST /api/v1/ask 的成功响应。
type AskResponse struct {
	RequestID       string   `json:"request_id"`
	Answer          string   `json:"answer"`
	ConfidenceScore float64  `json:"confidence_score"`
	Sources         []Source `json:"sources"`
	Timings         Timings  `json:"timings"`
}

// HealthResponse 是 GET /healthz 的响应。
type HealthResponse struct {
	Status         string `json:"status"`
	IndexVersion   string `json:"index_version"`
	RetrieverReady bool   `json:"retriever_ready"`
	GeneratorReady bool   `json:"generator_ready"`
}

// ErrorResponse 是统一的错误信封，detail 只包含可公开的信息。
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// SourcesFrom 按检索顺序把结果转换为响应中的来源列表。
func SourcesFrom(results []RetrievalResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{ID: r.ID, Source: r.Source, RetrievalScore: r.RetrievalScore})
	}
	return sources
}
