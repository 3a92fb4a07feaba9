package model

// EsDocument 定义了镜像到 Elasticsearch 中的向量文档结构。
// Row 是该记录在元数据文件中的位置，检索结果通过它与元数据对齐。
type EsDocument struct {
	Row          int       `json:"row"`
	ChunkID      string    `json:"chunk_id"`
	Source       string    `json:"source"`
	ChunkText    string    `json:"chunk_text"`
	Vector       []float32 `json:"vector"`
	IndexVersion string    `json:"index_version"`
	ModelName    string    `json:"model_name"`
}
