// Package retriever 组合 Embedder 与向量库：把查询编码成向量，取 k 近邻，
// 按行号关联元数据，并把距离换算为 retrieval_score。
package retriever

import (
	"context"
	"fmt"
	"sync"

	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/embedding"
	"faq-rag-go/pkg/log"
)

// Retriever 在 Load 成功后只读，可被多个请求并发调用。
type Retriever struct {
	embedder     embedding.Embedder
	store        *Store
	open         IndexOpener
	metadataPath string

	loadOnce sync.Once
	loadErr  error
}

// New 创建一个尚未加载的 Retriever。
func New(embedder embedding.Embedder, store *Store, open IndexOpener, metadataPath string) *Retriever {
	return &Retriever{
		embedder:     embedder,
		store:        store,
		open:         open,
		metadataPath: metadataPath,
	}
}

// Load 依次加载 embedding 模型、向量索引和元数据，只执行一次。
// 任意一步失败都会让 Retriever 永久处于未就绪状态。
func (r *Retriever) Load(ctx context.Context) error {
	r.loadOnce.Do(func() {
		r.loadErr = r.load(ctx)
	})
	return r.loadErr
}

func (r *Retriever) load(ctx context.Context) error {
	log.Info("[Retriever] 开始加载检索资源")
	if err := r.embedder.Load(ctx); err != nil {
		r.store.Fail()
		return &LoadError{Path: "embedding model " + r.embedder.ModelName(), Err: err}
	}

	open := func(ctx context.Context) (VectorSearcher, error) {
		idx, err := r.open(ctx)
		if err != nil {
			return nil, err
		}
		if idx.Dimension() != r.embedder.Dimensions() {
			return nil, &LoadError{
				Path: "vector index",
				Err:  fmt.Errorf("%w: index=%d embedder=%d", ErrDimensionMismatch, idx.Dimension(), r.embedder.Dimensions()),
			}
		}
		return idx, nil
	}
	if err := r.store.LoadWith(ctx, open, r.metadataPath); err != nil {
		return err
	}
	log.Info("[Retriever] 检索器已就绪")
	return nil
}

// IsReady 报告 Load 是否已成功完成。
func (r *Retriever) IsReady() bool {
	return r.store.State() == StateReady
}

// Search 返回与 query 最相关的至多 k 条记录，保持索引给出的距离升序，
// 不重新排序也不去重。retrieval_score = 1 - 平方 L2 距离。
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]model.RetrievalResult, error) {
	if state := r.store.State(); state != StateReady {
		return nil, &NotReadyError{Component: "retriever", State: state}
	}
	if k < 1 {
		return nil, ErrInvalidK
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	neighbors, err := r.store.Query(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	results := make([]model.RetrievalResult, 0, len(neighbors))
	for _, n := range neighbors {
		chunk, err := r.store.Chunk(n.Label)
		if err != nil {
			return nil, err
		}
		results = append(results, model.RetrievalResult{
			Chunk:          chunk,
			RetrievalScore: 1 - float64(n.Distance),
		})
	}
	log.Debugf("[Retriever] query_len=%d k=%d hits=%d", len(query), k, len(results))
	return results, nil
}
