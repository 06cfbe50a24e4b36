// Package indexer builds vector snapshots from the thesis store and imports theses into it.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/thesislens/internal/embedding"
	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/internal/snapshot"
	"github.com/hyperjump/thesislens/internal/storage"
	"github.com/hyperjump/thesislens/internal/vector"
)

// ErrNoDocuments is returned when the store holds no thesis with indexable text.
var ErrNoDocuments = errors.New("no documents to index")

// BuilderConfig controls how a snapshot is built.
type BuilderConfig struct {
	IndexType   string
	Compression vector.Compression
	BatchSize   int
	Workers     int
	UseFullText bool
}

// BuildStats summarizes one build.
type BuildStats struct {
	Total      int
	Indexed    int
	Skipped    int
	SkippedIDs []string
	Duration   time.Duration
}

// Builder embeds every thesis in the store and commits the result as a snapshot.
type Builder struct {
	store     storage.DocumentStore
	embedder  embedding.Embedder
	snapshots *snapshot.Store
	cfg       BuilderConfig
	logger    *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger for build progress.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a Builder. snapshots may be nil, in which case built
// snapshots are returned without being persisted.
func NewBuilder(store storage.DocumentStore, embedder embedding.Embedder, snapshots *snapshot.Store, cfg BuilderConfig, opts ...Option) *Builder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.IndexType == "" {
		cfg.IndexType = string(vector.IndexTypeFlat)
	}
	b := &Builder{
		store:     store,
		embedder:  embedder,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildFromSource reads every thesis, embeds the selected text in store order,
// builds the index with a positionally aligned metadata sequence and persists it.
// Theses with no usable text, or with an id the store rejects, are skipped and
// counted; the index never gets a placeholder vector.
func (b *Builder) BuildFromSource(ctx context.Context) (*snapshot.Snapshot, BuildStats, error) {
	start := time.Now()
	var stats BuildStats

	count, err := b.store.CountDocuments(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		return nil, stats, ErrNoDocuments
	}
	docs, err := b.store.ListDocuments(ctx, b.cfg.UseFullText)
	if err != nil {
		return nil, stats, fmt.Errorf("list documents: %w", err)
	}
	stats.Total = len(docs)

	texts := make([]string, 0, len(docs))
	records := make([]models.MetadataRecord, 0, len(docs))
	skip := func(id, reason string, fields ...zap.Field) {
		stats.Skipped++
		stats.SkippedIDs = append(stats.SkippedIDs, id)
		b.logger.Debug(reason, append(fields, zap.String("id", id))...)
	}
	for _, doc := range docs {
		// An id the store cannot look up again would be searchable but never recommendable.
		if err := b.store.ValidateID(doc.ID); err != nil {
			skip(doc.ID, "skipping thesis with unresolvable id", zap.Error(err))
			continue
		}
		text := Preprocess(doc.EmbeddingText(b.cfg.UseFullText))
		if text == "" {
			skip(doc.ID, "skipping thesis without text")
			continue
		}
		texts = append(texts, text)
		records = append(records, doc.Metadata())
	}
	if stats.Skipped > 0 {
		b.logger.Info("theses skipped during build", zap.Int("skipped", stats.Skipped), zap.Int("total", stats.Total))
	}
	if len(texts) == 0 {
		return nil, stats, ErrNoDocuments
	}

	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, stats, err
	}
	idx, err := vector.Build(ctx, b.cfg.IndexType, b.embedder.Dimensions(), vectors, vector.WithCompression(b.cfg.Compression))
	if err != nil {
		return nil, stats, fmt.Errorf("build index: %w", err)
	}
	snap, err := snapshot.New(idx, records, b.embedder.ModelName())
	if err != nil {
		_ = idx.Close()
		return nil, stats, err
	}
	if b.snapshots != nil {
		if err := b.snapshots.Save(ctx, snap); err != nil {
			_ = snap.Close()
			return nil, stats, fmt.Errorf("persist snapshot: %w", err)
		}
	}

	stats.Indexed = snap.Size()
	stats.Duration = time.Since(start)
	b.logger.Info("index built",
		zap.String("version", snap.Version),
		zap.Int("indexed", stats.Indexed),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("duration", stats.Duration))
	return snap, stats, nil
}

// embedAll embeds texts in batches, running up to cfg.Workers batches at once.
// Each batch writes into its own range of the result, so order matches texts.
func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	dims := b.embedder.Dimensions()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for offset := 0; offset < len(texts); offset += b.cfg.BatchSize {
		end := min(offset+b.cfg.BatchSize, len(texts))
		g.Go(func() error {
			batch, err := b.embedder.EmbedBatch(gctx, texts[offset:end])
			if err != nil {
				return fmt.Errorf("embed batch at %d: %w", offset, err)
			}
			if len(batch) != end-offset {
				return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", offset, len(batch), end-offset)
			}
			for i, v := range batch {
				if len(v) != dims {
					return fmt.Errorf("embed batch at %d: %w", offset, &vector.DimensionMismatchError{Expected: dims, Actual: len(v)})
				}
				vectors[offset+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
