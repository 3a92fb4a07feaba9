// Package model 定义了服务在各层之间传递的数据结构。
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Chunk 是知识库中的一条可检索记录。
// 它在元数据文件中的位置必须与其向量在索引中的位置一致。
type Chunk struct {
	ID        string
	Source    string
	ChunkText string
	Question  string
	Answer    string
	// Extra 保存元数据文件中其余字段，原样透传。
	Extra map[string]json.RawMessage
}

var chunkKnownKeys = map[string]struct{}{
	"id": {}, "source": {}, "chunk_text": {}, "question": {}, "answer": {},
}

// UnmarshalJSON 接受数字或字符串形式的 id，并保留未知字段。
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := DecodeID(raw["id"])
	if err != nil {
		return err
	}
	*c = Chunk{ID: id}

	for key, dst := range map[string]*string{
		"source":     &c.Source,
		"chunk_text": &c.ChunkText,
		"question":   &c.Question,
		"answer":     &c.Answer,
	} {
		v, ok := raw[key]
		if !ok || bytes.Equal(v, []byte("null")) {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}

	for key, v := range raw {
		if _, known := chunkKnownKeys[key]; known {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]json.RawMessage)
		}
		c.Extra[key] = v
	}
	return nil
}

// MarshalJSON 输出已知字段和 Extra 中的字段。
func (c Chunk) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Extra)+5)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["id"] = c.ID
	out["source"] = c.Source
	out["chunk_text"] = c.ChunkText
	if c.Question != "" {
		out["question"] = c.Question
	}
	if c.Answer != "" {
		out["answer"] = c.Answer
	}
	return json.Marshal(out)
}

// DecodeID 把 JSON 中的字符串或数字 id 统一为字符串。
func DecodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("field \"id\" must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

// RetrievalResult 是一条检索命中：原始记录加上 retrieval_score。
type RetrievalResult struct {
	Chunk
	RetrievalScore float64
}

// MarshalJSON 在 Chunk 的字段之外追加 retrieval_score。
func (r RetrievalResult) MarshalJSON() ([]byte, error) {
	base, err := r.Chunk.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	score, err := json.Marshal(r.RetrievalScore)
	if err != nil {
		return nil, err
	}
	out["retrieval_score"] = score
	return json.Marshal(out)
}

// GeneratedAnswer 是生成阶段的输出。
type GeneratedAnswer struct {
	Answer          string  `json:"answer"`
	ConfidenceScore float64 `json:"confidence_score"`
}
