package embedding

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h%100003)*float64(i+1))*0.1 + 0.01)
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns a name that encodes the dimension.
func (e *MockEmbedder) ModelName() string {
	return fmt.Sprintf("mock-%d", e.dimensions)
}

// Calls returns how many texts have been embedded.
func (e *MockEmbedder) Calls() int64 {
	return e.calls.Load()
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// LexiconEmbedder maps known terms onto fixed dimensions and returns the share of
// matched terms per dimension. Tests use it when ranking must follow topic overlap.
type LexiconEmbedder struct {
	dimensions int
	lexicon    map[string]int
}

// NewLexiconEmbedder returns an embedder where each term in lexicon contributes to
// the dimension it maps to. Terms outside the lexicon or out of range are ignored.
func NewLexiconEmbedder(dimensions int, lexicon map[string]int) *LexiconEmbedder {
	return &LexiconEmbedder{dimensions: dimensions, lexicon: lexicon}
}

// Embed returns the topic mix of text.
func (e *LexiconEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	matched := 0
	for _, term := range Terms(text) {
		if d, ok := e.lexicon[term]; ok && d >= 0 && d < e.dimensions {
			emb[d]++
			matched++
		}
	}
	if matched > 0 {
		for i := range emb {
			emb[i] /= float32(matched)
		}
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *LexiconEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *LexiconEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns a name that encodes the dimension.
func (e *LexiconEmbedder) ModelName() string {
	return fmt.Sprintf("lexicon-%d", e.dimensions)
}

// Close is a no-op.
func (e *LexiconEmbedder) Close() error {
	return nil
}
