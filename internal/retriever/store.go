package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/log"
	"faq-rag-go/pkg/vectorindex"
)

// State is the lifecycle of a Store: Unloaded -> Ready, or Unloaded -> Failed.
// Failed is terminal; a new Store must be created to retry.
type State int32

const (
	StateUnloaded State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// VectorSearcher is a nearest-neighbour backend. Search returns neighbours in
// ascending squared-L2 distance and may pad with vectorindex.NoLabel.
type VectorSearcher interface {
	Count(ctx context.Context) (int, error)
	Dimension() int
	Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Neighbor, error)
}

// IndexOpener opens the vector backend during Load.
type IndexOpener func(ctx context.Context) (VectorSearcher, error)

// FlatFile opens a FAISS flat index file from disk.
func FlatFile(path string) IndexOpener {
	return func(ctx context.Context) (VectorSearcher, error) {
		idx, err := vectorindex.LoadFile(path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		log.Infof("[VectorStore] 索引加载成功: %s, 向量数: %d, 维度: %d", path, idx.Len(), idx.Dimension())
		return NewFlatSearcher(idx), nil
	}
}

// flatSearcher adapts an in-memory vectorindex.Flat to VectorSearcher.
type flatSearcher struct {
	idx *vectorindex.Flat
}

// NewFlatSearcher wraps an in-memory flat index.
func NewFlatSearcher(idx *vectorindex.Flat) VectorSearcher {
	return flatSearcher{idx: idx}
}

func (f flatSearcher) Count(context.Context) (int, error) { return f.idx.Len(), nil }
func (f flatSearcher) Dimension() int                     { return f.idx.Dimension() }
func (f flatSearcher) Search(_ context.Context, vector []float32, k int) ([]vectorindex.Neighbor, error) {
	return f.idx.Search(vector, k)
}

// Store holds the vector index and the positionally aligned metadata records.
// It is immutable once Ready and safe for concurrent queries.
type Store struct {
	mu       sync.RWMutex
	state    State
	loading  bool
	index    VectorSearcher
	metadata []model.Chunk
}

// NewStore returns an Unloaded store.
func NewStore() *Store {
	return &Store{}
}

// State reports the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Load reads a FAISS flat index file and the metadata JSON file.
func (s *Store) Load(ctx context.Context, indexPath, metadataPath string) error {
	return s.LoadWith(ctx, FlatFile(indexPath), metadataPath)
}

// LoadWith opens the vector backend with open and reads the metadata file.
// The vector count must equal the number of metadata records.
func (s *Store) LoadWith(ctx context.Context, open IndexOpener, metadataPath string) error {
	s.mu.Lock()
	if s.state != StateUnloaded || s.loading {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state=%s)", ErrAlreadyLoaded, state)
	}
	s.loading = true
	s.mu.Unlock()

	// Queries observe Unloaded until the parts are in place.
	index, metadata, err := loadParts(ctx, open, metadataPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.state = StateFailed
		return err
	}

	s.index = index
	s.metadata = metadata
	s.state = StateReady
	log.Infof("[VectorStore] 向量库就绪, 记录数: %d", len(metadata))
	return nil
}

func loadParts(ctx context.Context, open IndexOpener, metadataPath string) (VectorSearcher, []model.Chunk, error) {
	index, err := open(ctx)
	if err != nil {
		return nil, nil, err
	}

	metadata, err := ReadMetadata(metadataPath)
	if err != nil {
		return nil, nil, &LoadError{Path: metadataPath, Err: err}
	}

	count, err := index.Count(ctx)
	if err != nil {
		return nil, nil, &LoadError{Path: "vector index", Err: err}
	}
	if count != len(metadata) {
		return nil, nil, &LoadError{
			Path: metadataPath,
			Err:  fmt.Errorf("%w: index has %d vectors, metadata has %d records", ErrCountMismatch, count, len(metadata)),
		}
	}
	return index, metadata, nil
}

// Fail moves an Unloaded store to Failed, e.g. when a dependency of the load failed.
func (s *Store) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		s.state = StateFailed
	}
}

// Dimension returns the index dimension, or 0 when not ready.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return 0
	}
	return s.index.Dimension()
}

// Len returns the number of records, or 0 when not ready.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metadata)
}

// Query returns up to k neighbours in index order with "no result" rows removed.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]vectorindex.Neighbor, error) {
	s.mu.RLock()
	state, index := s.state, s.index
	s.mu.RUnlock()

	if state != StateReady {
		return nil, &NotReadyError{Component: "vector index store", State: state}
	}

	neighbors, err := index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]vectorindex.Neighbor, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Label < 0 {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Chunk returns the metadata record at row.
func (s *Store) Chunk(row int64) (model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return model.Chunk{}, &NotReadyError{Component: "vector index store", State: s.state}
	}
	if row < 0 || row >= int64(len(s.metadata)) {
		return model.Chunk{}, fmt.Errorf("row %d out of range for %d metadata records", row, len(s.metadata))
	}
	return s.metadata[row], nil
}

// ReadMetadata decodes the metadata JSON array.
func ReadMetadata(path string) ([]model.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chunks []model.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return chunks, nil
}
