package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func benchVectors(n, dims int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, dims)
		vecs[i][0] = float32(i) / float32(n)
		vecs[i][i%dims] += 0.5
	}
	return vecs
}

func BenchmarkFlatIndexSearch(b *testing.B) {
	ctx := context.Background()
	idx, err := Build(ctx, "flat", 384, benchVectors(1000, 384))
	if err != nil {
		b.Fatal(err)
	}
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}

func BenchmarkFlatIndexLoad(b *testing.B) {
	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		b.Run(string(c), func(b *testing.B) {
			ctx := context.Background()
			idx, err := Build(ctx, "flat", 384, benchVectors(1000, 384), WithCompression(c))
			if err != nil {
				b.Fatal(err)
			}
			path := filepath.Join(b.TempDir(), "vectors.idx")
			if err := idx.Save(path); err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				loaded, _ := NewFlatIndex(384, CompressionNone)
				if err := loaded.Load(path); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
