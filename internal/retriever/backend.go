package retriever

import (
	"context"
	"fmt"

	"faq-rag-go/internal/config"
	"faq-rag-go/pkg/es"
)

// OpenerFromConfig 按 index.backend 选择本地 FAISS 文件或 Elasticsearch。
func OpenerFromConfig(cfg config.Config) (IndexOpener, error) {
	switch cfg.Index.Backend {
	case "flat":
		return FlatFile(cfg.Index.IndexPath()), nil
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
		}
		store := es.NewVectorStore(client, cfg.Elasticsearch.IndexName, cfg.Index.Version, cfg.Embedding.Dimensions)
		return func(context.Context) (VectorSearcher, error) { return store, nil }, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
