package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"faq-rag-go/internal/model"
	"faq-rag-go/internal/repository"
)

// Source 提供待建索引的知识库记录，返回顺序即索引行号顺序。
type Source interface {
	Load(ctx context.Context) ([]model.Chunk, error)
	Name() string
}

// JSONFileSource 读取 faq.json：一个对象数组，每个对象至少包含 question 与 answer。
// 其余字段原样写入元数据。
type JSONFileSource struct {
	Path string
}

func (s JSONFileSource) Name() string { return s.Path }

func (s JSONFileSource) Load(context.Context) ([]model.Chunk, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}
	var records []model.Chunk
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base %s: %w", s.Path, err)
	}
	for i := range records {
		if err := prepare(&records[i], i, s.Path); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// RepositorySource 从 knowledge_entries 表读取问答。
type RepositorySource struct {
	Repo repository.KnowledgeRepository
}

func (s RepositorySource) Name() string { return "mysql:knowledge_entries" }

func (s RepositorySource) Load(ctx context.Context) ([]model.Chunk, error) {
	entries, err := s.Repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	chunks := make([]model.Chunk, 0, len(entries))
	for i, e := range entries {
		c := e.ToChunk()
		if err := prepare(&c, i, s.Name()); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// prepare 校验一条记录并生成 chunk_text，问题和答案合并到同一个向量里。
func prepare(c *model.Chunk, i int, origin string) error {
	if c.Question == "" || c.Answer == "" {
		return fmt.Errorf("%s: record %d (id %q) needs both question and answer", origin, i, c.ID)
	}
	if c.ID == "" {
		return fmt.Errorf("%s: record %d has no id", origin, i)
	}
	c.ChunkText = model.KnowledgeEntry{Question: c.Question, Answer: c.Answer}.ChunkText()
	return nil
}

// SeedRepository 把 src 中的记录写入知识库表，返回写入条数。
func SeedRepository(ctx context.Context, repo repository.KnowledgeRepository, src Source) (int, error) {
	chunks, err := src.Load(ctx)
	if err != nil {
		return 0, err
	}
	entries := make([]model.KnowledgeEntry, 0, len(chunks))
	for _, c := range chunks {
		entries = append(entries, model.KnowledgeEntry{ID: c.ID, Source: c.Source, Question: c.Question, Answer: c.Answer})
	}
	if err := repo.Migrate(ctx); err != nil {
		return 0, fmt.Errorf("failed to migrate knowledge table: %w", err)
	}
	if err := repo.Upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("failed to seed knowledge table: %w", err)
	}
	return len(entries), nil
}
