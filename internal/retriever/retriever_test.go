package retriever

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"faq-rag-go/internal/model"
	"faq-rag-go/pkg/vectorindex"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
	loadErr error
	calls   atomic.Int32
}

func (f *fakeEmbedder) Load(context.Context) error { return f.loadErr }
func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int   { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake" }

// countingSearcher records whether the index was touched.
type countingSearcher struct {
	VectorSearcher
	searches atomic.Int32
}

func (c *countingSearcher) Search(ctx context.Context, v []float32, k int) ([]vectorindex.Neighbor, error) {
	c.searches.Add(1)
	return c.VectorSearcher.Search(ctx, v, k)
}

func oneHot(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

// writeArtifacts writes an index of n one-hot vectors and n metadata records
// with ids "doc-<row>".
func writeArtifacts(t *testing.T, n, metadataCount int) (indexPath, metadataPath string) {
	t.Helper()
	dir := t.TempDir()

	idx := vectorindex.NewFlat(n)
	for row := 0; row < n; row++ {
		if err := idx.Add(oneHot(n, row)); err != nil {
			t.Fatal(err)
		}
	}
	indexPath = filepath.Join(dir, "index_test.faiss")
	if err := vectorindex.SaveFile(indexPath, idx); err != nil {
		t.Fatal(err)
	}

	chunks := make([]model.Chunk, metadataCount)
	for row := range chunks {
		chunks[row] = model.Chunk{
			ID:        fmt.Sprintf("doc-%d", row),
			Source:    "faq.json",
			ChunkText: fmt.Sprintf("text %d", row),
		}
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		t.Fatal(err)
	}
	metadataPath = filepath.Join(dir, "metadata_test.json")
	if err := os.WriteFile(metadataPath, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return indexPath, metadataPath
}

func newLoaded(t *testing.T, n int, emb *fakeEmbedder) *Retriever {
	t.Helper()
	indexPath, metadataPath := writeArtifacts(t, n, n)
	r := New(emb, NewStore(), FlatFile(indexPath), metadataPath)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !r.IsReady() {
		t.Fatal("retriever should be ready")
	}
	return r
}

func TestSearch_PositionalIdentity(t *testing.T) {
	const n = 6
	emb := &fakeEmbedder{dim: n, vectors: map[string][]float32{}}
	for row := 0; row < n; row++ {
		emb.vectors[fmt.Sprintf("q%d", row)] = oneHot(n, row)
	}
	r := newLoaded(t, n, emb)

	for row := 0; row < n; row++ {
		results, err := r.Search(context.Background(), fmt.Sprintf("q%d", row), 1)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("len(results) = %d, want 1", len(results))
		}
		if want := fmt.Sprintf("doc-%d", row); results[0].ID != want {
			t.Errorf("row %d mapped to %s, want %s", row, results[0].ID, want)
		}
		if results[0].RetrievalScore != 1 {
			t.Errorf("exact match score = %v, want 1", results[0].RetrievalScore)
		}
		if results[0].ChunkText != fmt.Sprintf("text %d", row) || results[0].Source != "faq.json" {
			t.Errorf("metadata not copied: %+v", results[0].Chunk)
		}
	}
}

func TestSearch_OrderAndScore(t *testing.T) {
	const n = 4
	q := []float32{0.8, 0.6, 0, 0}
	emb := &fakeEmbedder{dim: n, vectors: map[string][]float32{"query": q}}
	r := newLoaded(t, n, emb)

	for k := 1; k <= 5; k++ {
		results, err := r.Search(context.Background(), "query", k)
		if err != nil {
			t.Fatalf("Search(k=%d) error = %v", k, err)
		}
		wantLen := k
		if wantLen > n {
			wantLen = n
		}
		if len(results) != wantLen {
			t.Fatalf("Search(k=%d) returned %d results, want %d", k, len(results), wantLen)
		}
		for i := 1; i < len(results); i++ {
			if results[i].RetrievalScore > results[i-1].RetrievalScore {
				t.Errorf("k=%d: scores not descending: %v then %v", k, results[i-1].RetrievalScore, results[i].RetrievalScore)
			}
		}
	}

	results, _ := r.Search(context.Background(), "query", 2)
	if results[0].ID != "doc-0" || results[1].ID != "doc-1" {
		t.Fatalf("order = %s,%s, want doc-0,doc-1", results[0].ID, results[1].ID)
	}
	// Squared L2 to doc-0 is 0.2^2 + 0.6^2 = 0.4, so the score is 0.6.
	if math.Abs(results[0].RetrievalScore-0.6) > 1e-6 {
		t.Errorf("score = %v, want 0.6", results[0].RetrievalScore)
	}
}

func TestSearch_FiltersNoResultRows(t *testing.T) {
	const n = 2
	emb := &fakeEmbedder{dim: n, vectors: map[string][]float32{"q": oneHot(n, 1)}}
	r := newLoaded(t, n, emb)

	results, err := r.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (padding rows dropped)", len(results))
	}
}

func TestSearch_NotReadyDoesNotTouchIndex(t *testing.T) {
	emb := &fakeEmbedder{dim: 2, vectors: map[string][]float32{"q": {1, 0}}}
	idx := vectorindex.NewFlat(2)
	_ = idx.Add([]float32{1, 0})
	searcher := &countingSearcher{VectorSearcher: NewFlatSearcher(idx)}

	opened := false
	r := New(emb, NewStore(), func(context.Context) (VectorSearcher, error) {
		opened = true
		return searcher, nil
	}, "unused.json")

	_, err := r.Search(context.Background(), "q", 1)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("Search() error = %v, want ErrNotReady", err)
	}
	var nre *NotReadyError
	if !errors.As(err, &nre) || nre.State != StateUnloaded {
		t.Errorf("error = %#v, want NotReadyError in Unloaded state", err)
	}
	if opened || searcher.searches.Load() != 0 || emb.calls.Load() != 0 {
		t.Error("not-ready search must not access the index or the embedder")
	}
}

func TestLoad_CountMismatch(t *testing.T) {
	indexPath, metadataPath := writeArtifacts(t, 3, 2)
	emb := &fakeEmbedder{dim: 3, vectors: map[string][]float32{"q": oneHot(3, 0)}}
	store := NewStore()
	r := New(emb, store, FlatFile(indexPath), metadataPath)

	err := r.Load(context.Background())
	if !errors.Is(err, ErrCountMismatch) {
		t.Fatalf("Load() error = %v, want ErrCountMismatch", err)
	}
	var le *LoadError
	if !errors.As(err, &le) {
		t.Errorf("error should be a LoadError, got %T", err)
	}
	if r.IsReady() || store.State() != StateFailed {
		t.Errorf("state = %s, want failed", store.State())
	}
	if _, err := r.Search(context.Background(), "q", 1); !errors.Is(err, ErrNotReady) {
		t.Errorf("Search() after failed load error = %v, want ErrNotReady", err)
	}
}

func TestLoad_FailureIsTerminal(t *testing.T) {
	indexPath, metadataPath := writeArtifacts(t, 2, 2)
	emb := &fakeEmbedder{dim: 2, loadErr: errors.New("model download failed")}
	store := NewStore()
	r := New(emb, store, FlatFile(indexPath), metadataPath)

	if err := r.Load(context.Background()); err == nil {
		t.Fatal("Load() should fail when the embedder fails")
	}
	if store.State() != StateFailed {
		t.Fatalf("state = %s, want failed", store.State())
	}

	emb.loadErr = nil
	if err := r.Load(context.Background()); err == nil {
		t.Error("second Load() on the same retriever should keep the original failure")
	}
	if err := store.Load(context.Background(), indexPath, metadataPath); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("store.Load() after failure error = %v, want ErrAlreadyLoaded", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	indexPath, metadataPath := writeArtifacts(t, 2, 2)

	tests := []struct {
		name      string
		indexPath string
		metaPath  string
		dim       int
		wantIs    error
	}{
		{"missing index", filepath.Join(t.TempDir(), "nope.faiss"), metadataPath, 2, os.ErrNotExist},
		{"missing metadata", indexPath, filepath.Join(t.TempDir(), "nope.json"), 2, os.ErrNotExist},
		{"dimension mismatch", indexPath, metadataPath, 3, ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &fakeEmbedder{dim: tt.dim}
			r := New(emb, NewStore(), FlatFile(tt.indexPath), tt.metaPath)
			err := r.Load(context.Background())
			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantIs)
			}
			if r.IsReady() {
				t.Error("retriever should not be ready")
			}
		})
	}
}

func TestSearch_InvalidK(t *testing.T) {
	emb := &fakeEmbedder{dim: 2, vectors: map[string][]float32{"q": {1, 0}}}
	r := newLoaded(t, 2, emb)
	if _, err := r.Search(context.Background(), "q", 0); !errors.Is(err, ErrInvalidK) {
		t.Errorf("Search(k=0) error = %v, want ErrInvalidK", err)
	}
}

func TestSearch_PropagatesEmbedderError(t *testing.T) {
	emb := &fakeEmbedder{dim: 2, vectors: map[string][]float32{}}
	r := newLoaded(t, 2, emb)
	if _, err := r.Search(context.Background(), "unknown", 1); err == nil {
		t.Error("expected embedder error to propagate")
	}
}

func TestSearch_Concurrent(t *testing.T) {
	const n = 8
	emb := &fakeEmbedder{dim: n, vectors: map[string][]float32{}}
	for row := 0; row < n; row++ {
		emb.vectors[fmt.Sprintf("q%d", row)] = oneHot(n, row)
	}
	r := newLoaded(t, n, emb)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row := i % n
			results, err := r.Search(context.Background(), fmt.Sprintf("q%d", row), 3)
			if err != nil {
				errs <- err
				return
			}
			if results[0].ID != fmt.Sprintf("doc-%d", row) {
				errs <- fmt.Errorf("row %d got %s", row, results[0].ID)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
