// Package vecindex keeps one exact inner-product index per collection,
// persisted as a single file of float32 vectors in insertion order.
// The id-to-position mapping lives in the content store.
package vecindex

import (
	"sort"
	"sync"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// Neighbor is one scored index position.
type Neighbor struct {
	Position int
	Score    float64
}

// Flat is an append-only flat index scored by inner product. Vectors are
// expected to be L2-normalized by the caller.
type Flat struct {
	mu   sync.RWMutex
	dim  int
	n    int
	data []float32 // n*dim, row-major by position
}

// NewFlat creates an empty index of the given dimension.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.n
}

// Search returns up to k positions by descending inner product. Ties keep
// index order.
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dim {
		return nil, domain.NewDimensionError(f.dim, len(query))
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.n == 0 || k <= 0 {
		return nil, nil
	}
	out := make([]Neighbor, f.n)
	for pos := 0; pos < f.n; pos++ {
		row := f.data[pos*f.dim : (pos+1)*f.dim]
		out[pos] = Neighbor{Position: pos, Score: domain.Dot(query, row)}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// withAppended returns the backing data extended by vs without mutating f.
// Callers hold f.mu.
func (f *Flat) withAppended(vs [][]float32) []float32 {
	out := make([]float32, len(f.data), len(f.data)+len(vs)*f.dim)
	copy(out, f.data)
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}
