// Package vectorindex 提供精确的暴力 k 近邻索引（与 FAISS IndexFlatL2 语义一致），
// 以及 FAISS 扁平索引二进制格式的读写。
package vectorindex

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
)

// NoLabel 表示该位置没有匹配结果（k 大于向量总数时用于补齐）。
const NoLabel int64 = -1

var (
	// ErrDimensionMismatch 表示查询或插入的向量维度与索引不一致。
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidK 表示 k 不是正数。
	ErrInvalidK = errors.New("k must be positive")
)

// Neighbor 是一条近邻结果。Distance 为平方 L2 距离。
type Neighbor struct {
	Label    int64
	Distance float32
}

// Flat 按插入顺序保存向量，行号即标签。
// 加载完成后只读，可被多个 goroutine 并发 Search；Add 不能与 Search 并发。
type Flat struct {
	dim     int
	vectors []float32
}

// NewFlat 创建一个空的 L2 扁平索引。
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Dimension 返回向量维度。
func (f *Flat) Dimension() int { return f.dim }

// Len 返回向量总数（FAISS 中的 ntotal）。
func (f *Flat) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.vectors) / f.dim
}

// Vector 返回第 row 个向量的副本。
func (f *Flat) Vector(row int) []float32 {
	out := make([]float32, f.dim)
	copy(out, f.vectors[row*f.dim:(row+1)*f.dim])
	return out
}

// Add 依次追加向量。
func (f *Flat) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.vectors = append(f.vectors, v...)
	}
	return nil
}

// Search 返回恰好 k 条结果，按距离升序，距离相同时行号小的在前。
// 向量不足 k 个时用 {NoLabel, MaxFloat32} 补齐。
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), f.dim)
	}

	h := make(neighborHeap, 0, k)
	n := f.Len()
	for row := 0; row < n; row++ {
		d := squaredL2(query, f.vectors[row*f.dim:(row+1)*f.dim])
		cand := Neighbor{Label: int64(row), Distance: d}
		if len(h) < k {
			heap.Push(&h, cand)
			continue
		}
		if worse(h[0], cand) {
			h[0] = cand
			heap.Fix(&h, 0)
		}
	}

	out := make([]Neighbor, k)
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Neighbor)
	}
	for i := n; i < k; i++ {
		out[i] = Neighbor{Label: NoLabel, Distance: math.MaxFloat32}
	}
	return out, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// worse 判断 a 是否排在 b 之后。
func worse(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Label > b.Label
}

// neighborHeap 是以“最差结果”为堆顶的最大堆。
type neighborHeap []Neighbor

func (h neighborHeap) Len() int            { return len(h) }
func (h neighborHeap) Less(i, j int) bool  { return worse(h[i], h[j]) }
func (h neighborHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x interface{}) { *h = append(*h, x.(Neighbor)) }
func (h *neighborHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
