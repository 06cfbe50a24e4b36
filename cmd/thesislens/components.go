package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/thesislens/internal/config"
	"github.com/hyperjump/thesislens/internal/embedding"
	"github.com/hyperjump/thesislens/internal/extract"
	"github.com/hyperjump/thesislens/internal/indexer"
	"github.com/hyperjump/thesislens/internal/search"
	"github.com/hyperjump/thesislens/internal/snapshot"
	"github.com/hyperjump/thesislens/internal/storage"
	"github.com/hyperjump/thesislens/internal/vector"
)

// Components holds the wired service graph.
type Components struct {
	Store     storage.DocumentStore
	Embedder  embedding.Embedder
	Snapshots *snapshot.Store
	Builder   *indexer.Builder
	Engine    *search.Engine
}

// Close releases the engine, the embedder and the store.
func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.New(cfg.Embedding, embedding.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	indexType := cfg.Index.Type
	if indexType == string(vector.IndexTypeFAISS) && !vector.IsFAISSAvailable() {
		logger.Warn("FAISS not compiled in (build without -tags=faiss), using flat index")
		indexType = string(vector.IndexTypeFlat)
	}
	compression := vector.Compression(cfg.Index.Compression)

	snapshots := snapshot.NewStore(cfg.Index.Dir,
		snapshot.WithLogger(logger),
		snapshot.WithCompression(compression),
	)
	builder := indexer.NewBuilder(store, embedder, snapshots, indexer.BuilderConfig{
		IndexType:   indexType,
		Compression: compression,
		BatchSize:   cfg.Embedding.BatchSize,
		Workers:     cfg.Embedding.Workers,
		UseFullText: cfg.Index.UseFullText,
	}, indexer.WithLogger(logger))
	engine := search.NewEngine(store, embedder, snapshots, builder, search.WithLogger(logger))

	return &Components{
		Store:     store,
		Embedder:  embedder,
		Snapshots: snapshots,
		Builder:   builder,
		Engine:    engine,
	}, nil
}

// openStore opens the document store named by cfg.Store.Driver.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.DocumentStore, error) {
	switch cfg.Store.Driver {
	case "mongo":
		store, err := storage.NewMongoStore(ctx, storage.MongoConfig{
			URI:        cfg.Store.Mongo.URI,
			Database:   cfg.Store.Mongo.Database,
			Collection: cfg.Store.Mongo.Collection,
			Timeout:    time.Duration(cfg.Store.Mongo.TimeoutSeconds) * time.Second,
		}, storage.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo store: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := storage.NewSQLiteStore(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// importTheses loads the thesis list at listPath into the SQLite store at dbPath.
func importTheses(ctx context.Context, dbPath, listPath string, logger *zap.Logger) (indexer.ImportStats, error) {
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return indexer.ImportStats{}, err
	}
	defer store.Close()
	im := indexer.NewImporter(store, extract.NewExtractor(), indexer.WithImportLogger(logger))
	return im.ImportFile(ctx, listPath)
}

// statusDirect reports the persisted snapshot and the store without starting
// an engine, so it never triggers a build.
func statusDirect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*statusResponse, error) {
	out := &statusResponse{Index: search.Status{State: search.StateUninitialized.String()}}

	snapshots := snapshot.NewStore(cfg.Index.Dir, snapshot.WithLogger(logger))
	snap, err := snapshots.Load(ctx)
	if err != nil {
		out.Index.LastError = err.Error()
	} else {
		defer snap.Close()
		out.Index = search.Status{
			State:      search.StateReady.String(),
			Size:       snap.Size(),
			Model:      snap.Model,
			Dimensions: snap.Dimensions,
			Version:    snap.Version,
			IndexType:  snap.Index.Type(),
			CreatedAt:  snap.CreatedAt,
		}
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		out.StoreError = err.Error()
	} else {
		defer store.Close()
		reachable := storage.Ping(ctx, store) == nil
		out.StoreReachable = &reachable
		if n, err := store.CountDocuments(ctx); err != nil {
			out.StoreError = err.Error()
		} else {
			out.Documents = &n
		}
	}

	if n, err := storage.DiskUsageBytes(cfg.Index.Dir); err == nil {
		out.DiskUsageBytes = &n
	}
	return out, nil
}
