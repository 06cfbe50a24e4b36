// Package vector provides exact nearest-neighbor indexes over embedding vectors.
//
// Entries are addressed by position: the i-th vector added has position i.
// Distances are squared Euclidean (L2) over the raw vectors; lower is closer.
package vector

import (
	"context"
	"fmt"
)

// Index stores vectors positionally and answers k-nearest-neighbor queries.
// Implementations are safe for concurrent Search calls.
type Index interface {
	// Add appends vectors at positions Size()..Size()+len(vectors)-1.
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns up to k entries ordered by ascending distance, ties by position.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Result is a single nearest-neighbor hit.
type Result struct {
	Position int
	Distance float64
}

// Build creates an index of the given type and fills it with vectors.
// Empty input is rejected with ErrEmptyBuild.
func Build(ctx context.Context, indexType string, dimensions int, vectors [][]float32, opts ...Option) (Index, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyBuild
	}
	idx, err := NewIndex(indexType, dimensions, opts...)
	if err != nil {
		return nil, err
	}
	if err := idx.Add(ctx, vectors); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("build %s index: %w", idx.Type(), err)
	}
	return idx, nil
}
