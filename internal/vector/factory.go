package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeFlat uses in-memory brute-force search. Exact, and fast enough for
	// repository-sized corpora (tens of thousands of theses).
	IndexTypeFlat IndexType = "flat"
	// IndexTypeMemory is an alias for IndexTypeFlat.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses a FAISS IndexFlatL2. Requires the FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// Option configures an index created by NewIndex.
type Option func(*indexOptions)

type indexOptions struct {
	compression Compression
}

// WithCompression sets the payload compression used when a flat index is saved.
func WithCompression(c Compression) Option {
	return func(o *indexOptions) {
		o.compression = c
	}
}

// NewIndex creates an empty vector index of the specified type.
// Supported types: "flat" (default, alias "memory"), "faiss".
func NewIndex(indexType string, dimensions int, opts ...Option) (Index, error) {
	var o indexOptions
	for _, opt := range opts {
		opt(&o)
	}
	switch IndexType(indexType) {
	case IndexTypeFlat, IndexTypeMemory, "":
		return NewFlatIndex(dimensions, o.compression)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
