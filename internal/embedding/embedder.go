// Package embedding turns thesis text into fixed-dimension vectors.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations are deterministic:
// the same text always yields the same vector. EmbedBatch is equivalent to calling
// Embed for each item in order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// ModelName identifies the embedding space; vectors from different models are not comparable.
	ModelName() string
	Close() error
}

// embedEach runs embed for each text in order, stopping at the first error or
// when ctx is done.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
