package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/thesislens/internal/config"
)

// Pooling strategies for token-level model outputs.
const (
	PoolingMean = "mean"
	PoolingCLS  = "cls"
	// PoolingNone means the model output is already a [1 x dims] sentence vector.
	PoolingNone = "none"
)

// Embedding providers accepted by New.
const (
	ProviderONNX    = "onnx"
	ProviderHashing = "hashing"
)

// ONNXConfig configures an ONNXEmbedder.
type ONNXConfig struct {
	ModelPath  string
	VocabPath  string
	ModelName  string
	OutputName string
	Pooling    string
	Normalize  bool
	Dimensions int
	MaxTokens  int
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.ModelName == "" {
		c.ModelName = "all-MiniLM-L6-v2"
	}
	if c.OutputName == "" {
		c.OutputName = "last_hidden_state"
	}
	if c.Pooling == "" {
		c.Pooling = PoolingMean
	}
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	return c
}

// Option configures an embedder.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used by the embedder.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates the embedder selected by cfg.Provider and wraps it in a query cache
// when cfg.CacheSize > 0. An ONNX model that cannot be loaded is an error unless
// cfg.Fallback is "hashing", in which case a HashingEmbedder of the same dimension
// is used. Its different model name makes any snapshot built with the real model
// stale, so the next initialization rebuilds and replaces it.
func New(cfg config.EmbeddingConfig, opts ...Option) (Embedder, error) {
	o := applyOptions(opts)
	var e Embedder
	switch cfg.Provider {
	case ProviderONNX, "":
		onnx, err := NewONNXEmbedder(ONNXConfig{
			ModelPath:  cfg.ModelPath,
			VocabPath:  cfg.VocabPath,
			ModelName:  cfg.ModelName,
			OutputName: cfg.OutputName,
			Pooling:    cfg.Pooling,
			Normalize:  cfg.Normalize,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		}, opts...)
		switch {
		case err == nil:
			e = onnx
		case cfg.Fallback == ProviderHashing:
			o.logger.Warn("onnx embedder unavailable, falling back to hashing embedder", zap.Error(err))
			e = NewHashingEmbedder(cfg.Dimensions)
		default:
			return nil, fmt.Errorf("failed to load onnx embedder (set embedding.fallback: hashing to allow the hashing embedder): %w", err)
		}
	case ProviderHashing:
		e = NewHashingEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, hashing)", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
