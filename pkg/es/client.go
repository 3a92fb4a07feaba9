// Package es 提供了与 Elasticsearch 交互的客户端功能：
// 把知识库向量镜像到 dense_vector 索引，并可作为检索后端。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"faq-rag-go/internal/config"
	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/log"
	"faq-rag-go/pkg/vectorindex"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// NewClient 创建 Elasticsearch 客户端，多个地址用逗号分隔。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addresses []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// VectorStore 保存某一个索引版本的向量。文档的 row 字段等于其在元数据文件中的位置。
type VectorStore struct {
	client  *elasticsearch.Client
	index   string
	version string
	dim     int
}

// NewVectorStore 创建一个新的 VectorStore。
func NewVectorStore(client *elasticsearch.Client, indexName, version string, dim int) *VectorStore {
	return &VectorStore{client: client, index: indexName, version: version, dim: dim}
}

// Dimension 返回向量维度。
func (s *VectorStore) Dimension() int { return s.dim }

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
// l2_norm 的得分为 1/(1+d²)，检索时据此还原平方 L2 距离。
func (s *VectorStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", s.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"row": { "type": "integer" },
				"chunk_id": { "type": "keyword" },
				"source": { "type": "keyword" },
				"chunk_text": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "l2_norm"
				},
				"index_version": { "type": "keyword" },
				"model_name": { "type": "keyword" }
			}
		}
	}`, s.dim)

	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.String())
	}
	log.Infof("[ES] 索引 '%s' 创建成功", s.index)
	return nil
}

// DeleteVersion 删除当前版本的全部文档，重新导入前调用。
func (s *VectorStore) DeleteVersion(ctx context.Context) error {
	body := fmt.Sprintf(`{"query":{"term":{"index_version":%q}}}`, s.version)
	res, err := s.client.DeleteByQuery(
		[]string{s.index},
		strings.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("failed to delete version %s: %w", s.version, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete_by_query failed: %s", res.String())
	}
	return nil
}

// IndexDocuments 通过 bulk 接口写入文档，文档 ID 为 {version}-{row}。
func (s *VectorStore) IndexDocuments(ctx context.Context, docs []model.EsDocument) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]map[string]string{
			"index": {"_index": s.index, "_id": fmt.Sprintf("%s-%d", doc.IndexVersion, doc.Row)},
		}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk request returned error: %s", res.String())
	}

	var result struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if result.Errors {
		return errors.New("bulk request had item errors")
	}
	return nil
}

// Count 返回当前版本的文档数。
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	body := fmt.Sprintf(`{"query":{"term":{"index_version":%q}}}`, s.version)
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
		s.client.Count.WithBody(strings.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("count request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("count request returned error: %s", res.String())
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return result.Count, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				Row int64 `json:"row"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 执行 kNN 查询，返回按平方 L2 距离升序的近邻。
func (s *VectorStore) Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Neighbor, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", vectorindex.ErrDimensionMismatch, len(vector), s.dim)
	}
	if k < 1 {
		return nil, vectorindex.ErrInvalidK
	}
	numCandidates := k * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": numCandidates,
			"filter":         map[string]interface{}{"term": map[string]interface{}{"index_version": s.version}},
		},
		"size":    k,
		"_source": []string{"row"},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search returned error: %s", string(body))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	neighbors := make([]vectorindex.Neighbor, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		neighbors = append(neighbors, vectorindex.Neighbor{
			Label:    hit.Source.Row,
			Distance: scoreToSquaredL2(hit.Score),
		})
	}
	return neighbors, nil
}

func scoreToSquaredL2(score float64) float32 {
	if score <= 0 {
		return math.MaxFloat32
	}
	d := 1/score - 1
	if d < 0 {
		d = 0
	}
	return float32(d)
}
