package vector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
)

// FlatIndex is an in-memory exact index using brute-force squared L2 search.
// Vectors are kept in one contiguous row-major slice.
type FlatIndex struct {
	dimensions  int
	compression Compression
	data        []float32
	count       int
	mu          sync.RWMutex
}

// NewFlatIndex creates an empty flat index with the given dimension.
func NewFlatIndex(dimensions int, compression Compression) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if compression == "" {
		compression = CompressionNone
	}
	if !compression.valid() {
		return nil, fmt.Errorf("unknown compression: %s (supported: none, zstd)", compression)
	}
	return &FlatIndex{dimensions: dimensions, compression: compression}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Add appends vectors. Either all vectors are added or none are.
func (f *FlatIndex) Add(ctx context.Context, vectors [][]float32) error {
	for _, v := range vectors {
		if err := checkDimensions(f.dimensions, v); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	f.count += len(vectors)
	return nil
}

// Search returns the k nearest vectors to query.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if err := checkDimensions(f.dimensions, query); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || f.count == 0 {
		return nil, nil
	}
	results := make([]Result, f.count)
	d := f.dimensions
	for i := 0; i < f.count; i++ {
		results[i] = Result{Position: i, Distance: SquaredL2(query, f.data[i*d:(i+1)*d])}
	}
	sortResults(results)
	if k > len(results) {
		k = len(results)
	}
	return results[:k:k], nil
}

// Vector returns a copy of the vector at position i.
func (f *FlatIndex) Vector(i int) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i < 0 || i >= f.count {
		return nil, false
	}
	out := make([]float32, f.dimensions)
	copy(out, f.data[i*f.dimensions:(i+1)*f.dimensions])
	return out, true
}

// Save writes the index to path atomically.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return writeFileAtomic(path, func(tmpPath string) error {
		file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("open index file: %w", err)
		}
		bw := bufio.NewWriter(file)
		err = encodeFlat(bw, header{
			compression: f.compression,
			dimensions:  f.dimensions,
			count:       f.count,
		}, f.data)
		if err == nil {
			err = bw.Flush()
		}
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		return err
	})
}

// Load replaces the index contents with the file at path. The file's dimension
// must match the index dimension.
func (f *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}

	h, data, err := decodeFlat(file, info.Size(), f.dimensions)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	f.count = h.count
	f.compression = h.compression
	return nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Close releases the stored vectors.
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = nil
	f.count = 0
	return nil
}
