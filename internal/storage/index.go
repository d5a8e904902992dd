package storage

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrEmptyIndex        = errors.New("vector index is empty")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Match is one search hit: the index row of the matched vector and its
// similarity score (inner product of unit vectors; higher is more similar).
type Match struct {
	Position int
	Score    float64
}

// VectorIndex is a flat, append-only nearest-neighbor index. Vectors are
// L2-normalized on insert and queries normalized on search, so the inner
// product ranking is cosine similarity, descending.
//
// Like Corpus, VectorIndex is not internally locked; the owning service
// serializes access.
type VectorIndex struct {
	dim     int
	vectors [][]float32
}

func NewVectorIndex() *VectorIndex {
	return &VectorIndex{}
}

// Add appends vectors and returns their assigned positions: consecutive
// integers starting at the current index size. The dimensionality is fixed by
// the first vector ever added; later mismatches fail the whole call with
// ErrDimensionMismatch and leave the index unchanged.
func (x *VectorIndex) Add(vectors [][]float32) ([]int, error) {
	if len(vectors) == 0 {
		return nil, nil
	}

	dim := x.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dim %d, index has %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	x.dim = dim
	positions := make([]int, len(vectors))
	for i, v := range vectors {
		positions[i] = len(x.vectors)
		x.vectors = append(x.vectors, normalize(v))
	}
	return positions, nil
}

// Search returns the k most similar rows, best first. k is clamped to the
// index size. Ties score-wise resolve to the lower position so rankings are
// deterministic.
func (x *VectorIndex) Search(query []float32, k int) ([]Match, error) {
	if len(x.vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has dim %d, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}
	if k > len(x.vectors) {
		k = len(x.vectors)
	}
	if k <= 0 {
		return []Match{}, nil
	}

	q := normalize(query)
	matches := make([]Match, len(x.vectors))
	for i, v := range x.vectors {
		matches[i] = Match{Position: i, Score: dot(q, v)}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Position < matches[j].Position
	})

	return matches[:k], nil
}

// Len returns the number of indexed vectors.
func (x *VectorIndex) Len() int {
	return len(x.vectors)
}

// Reset drops all vectors and unfixes the dimensionality.
func (x *VectorIndex) Reset() {
	x.vectors = nil
	x.dim = 0
}

// normalize returns a unit-length copy of v. Zero vectors are returned as-is;
// their inner product with anything is zero, ranking them last.
func normalize(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i, val := range v {
		out[i] = val / norm
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
