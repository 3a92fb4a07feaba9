// Package pipeline 定义了离线构建知识库索引的流程：
// 读取问答 -> 生成 chunk_text -> 批量向量化 -> 写入索引与元数据 -> 可选的镜像与上传。
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"faq-rag-go/internal/config"
	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/embedding"
	"faq-rag-go/pkg/log"
	"faq-rag-go/pkg/vectorindex"

	"golang.org/x/time/rate"
)

// VectorMirror 接收向量副本，例如 Elasticsearch。
type VectorMirror interface {
	EnsureIndex(ctx context.Context) error
	DeleteVersion(ctx context.Context) error
	IndexDocuments(ctx context.Context, docs []model.EsDocument) error
}

// ArtifactUploader 发布构建好的文件，例如 MinIO。
type ArtifactUploader interface {
	UploadArtifacts(ctx context.Context, dataDir, version string) error
}

// Result 描述一次构建的产物。
type Result struct {
	Count        int
	Dimension    int
	IndexPath    string
	MetadataPath string
}

// Processor 封装了建索引的所有依赖和逻辑。
type Processor struct {
	embedder  embedding.Embedder
	limiter   *rate.Limiter
	batchSize int
	mirror    VectorMirror
	uploader  ArtifactUploader
}

// Option 配置可选依赖。
type Option func(*Processor)

// WithMirror 在写完本地文件后把向量镜像到 m。
func WithMirror(m VectorMirror) Option {
	return func(p *Processor) { p.mirror = m }
}

// WithUploader 在写完本地文件后上传产物。
func WithUploader(u ArtifactUploader) Option {
	return func(p *Processor) { p.uploader = u }
}

// NewProcessor 创建一个新的 Processor 实例。
// requestsPerSecond <= 0 表示不限速。
func NewProcessor(embedder embedding.Embedder, batchSize int, requestsPerSecond float64, opts ...Option) *Processor {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	p := &Processor{
		embedder:  embedder,
		limiter:   rate.NewLimiter(limit, 1),
		batchSize: batchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Build 为 src 中的全部记录构建 version 版本的索引和元数据。
func (p *Processor) Build(ctx context.Context, src Source, dataDir, version string) (*Result, error) {
	log.Infof("[Processor] 开始构建索引, source: %s, version: %s", src.Name(), version)

	chunks, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errors.New("knowledge base is empty")
	}
	log.Infof("[Processor] 步骤1: 读取到 %d 条记录", len(chunks))

	if err := p.embedder.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load embedding model: %w", err)
	}

	vectors, err := p.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	idx := vectorindex.NewFlat(p.embedder.Dimensions())
	if err := idx.Add(vectors...); err != nil {
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}

	res := &Result{
		Count:        idx.Len(),
		Dimension:    idx.Dimension(),
		IndexPath:    filepath.Join(dataDir, config.IndexFileName(version)),
		MetadataPath: filepath.Join(dataDir, config.MetadataFileName(version)),
	}
	if err := vectorindex.SaveFile(res.IndexPath, idx); err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}
	if err := WriteMetadata(res.MetadataPath, chunks); err != nil {
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}
	log.Infof("[Processor] 步骤3: 已写入 %s 与 %s, 向量数: %d", res.IndexPath, res.MetadataPath, res.Count)

	if p.mirror != nil {
		if err := p.mirrorVectors(ctx, chunks, vectors, version); err != nil {
			return nil, err
		}
	}
	if p.uploader != nil {
		if err := p.uploader.UploadArtifacts(ctx, dataDir, version); err != nil {
			return nil, fmt.Errorf("failed to upload artifacts: %w", err)
		}
		log.Info("[Processor] 步骤5: 产物已上传")
	}
	return res, nil
}

func (p *Processor) embedAll(ctx context.Context, chunks []model.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.ChunkText)
		}
		batch, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("记录 %d-%d 向量化失败: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
		log.Infof("[Processor] 步骤2: 向量化进度 %d/%d", end, len(chunks))
	}
	return vectors, nil
}

func (p *Processor) mirrorVectors(ctx context.Context, chunks []model.Chunk, vectors [][]float32, version string) error {
	if err := p.mirror.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to prepare mirror index: %w", err)
	}
	if err := p.mirror.DeleteVersion(ctx); err != nil {
		return fmt.Errorf("failed to clear mirror version: %w", err)
	}
	docs := make([]model.EsDocument, 0, p.batchSize)
	for row, c := range chunks {
		docs = append(docs, model.EsDocument{
			Row:          row,
			ChunkID:      c.ID,
			Source:       c.Source,
			ChunkText:    c.ChunkText,
			Vector:       vectors[row],
			IndexVersion: version,
			ModelName:    p.embedder.ModelName(),
		})
		if len(docs) == cap(docs) || row == len(chunks)-1 {
			if err := p.mirror.IndexDocuments(ctx, docs); err != nil {
				return fmt.Errorf("failed to mirror vectors: %w", err)
			}
			docs = make([]model.EsDocument, 0, p.batchSize)
		}
	}
	log.Infof("[Processor] 步骤4: 已镜像 %d 个向量", len(chunks))
	return nil
}

// WriteMetadata 以缩进 JSON 写入元数据，先写临时文件再重命名。
func WriteMetadata(path string, chunks []model.Chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(chunks); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
