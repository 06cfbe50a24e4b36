// Package search owns the live snapshot and answers similarity and recommendation queries.
//
// An Engine starts UNINITIALIZED. Initialize loads the persisted snapshot or builds
// a new one and, on success, moves the engine to READY. Queries read the current
// snapshot through an atomic pointer and never block each other.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/thesislens/internal/embedding"
	"github.com/hyperjump/thesislens/internal/indexer"
	"github.com/hyperjump/thesislens/internal/snapshot"
	"github.com/hyperjump/thesislens/internal/storage"
	"github.com/hyperjump/thesislens/internal/vector"
)

var (
	// ErrEmptyInput is returned for a blank query text or thesis id.
	ErrEmptyInput = errors.New("empty input")
	// ErrNotReady is returned while no snapshot has been loaded or built.
	ErrNotReady = errors.New("index not ready")
	// ErrEmptyContent is returned when the target thesis has neither full text nor abstract.
	ErrEmptyContent = errors.New("thesis has no text to compare")
)

// State is the engine lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Engine serves queries against the current snapshot.
type Engine struct {
	store     storage.DocumentStore
	embedder  embedding.Embedder
	snapshots *snapshot.Store
	builder   *indexer.Builder
	logger    *zap.Logger

	current atomic.Pointer[snapshot.Snapshot]

	initOnce sync.Once
	initErr  error

	// rebuildMu serializes builds; queries never take it.
	rebuildMu sync.Mutex
	lastErr   atomic.Pointer[string]
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for lifecycle and query failures.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine in the UNINITIALIZED state. snapshots may be nil
// to disable loading from disk; builder may be nil to disable building.
func NewEngine(store storage.DocumentStore, embedder embedding.Embedder, snapshots *snapshot.Store, builder *indexer.Builder, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		embedder:  embedder,
		snapshots: snapshots,
		builder:   builder,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	if e.current.Load() != nil {
		return StateReady
	}
	return StateUninitialized
}

// Initialize loads the persisted snapshot, or builds one when none is usable,
// and moves the engine to READY. It runs at most once; later calls return the
// first result. A *vector.DimensionMismatchError means the persisted snapshot
// and the configured embedder disagree and no rebuild is attempted.
func (e *Engine) Initialize(ctx context.Context) error {
	e.initOnce.Do(func() {
		e.initErr = e.warmUp(ctx)
		if e.initErr != nil {
			e.setLastError(e.initErr)
			e.logger.Error("index initialization failed; queries will be rejected", zap.Error(e.initErr))
		}
	})
	return e.initErr
}

func (e *Engine) warmUp(ctx context.Context) error {
	if e.snapshots != nil {
		snap, err := e.snapshots.Load(ctx)
		switch {
		case err == nil:
			compatErr := snap.CheckCompatible(e.embedder.ModelName(), e.embedder.Dimensions())
			if compatErr == nil {
				e.publish(snap)
				e.logger.Info("loaded persisted index",
					zap.String("version", snap.Version),
					zap.Int("size", snap.Size()),
					zap.String("model", snap.Model))
				return nil
			}
			_ = snap.Close()
			if errors.Is(compatErr, vector.ErrDimensionMismatch) {
				return fmt.Errorf("persisted index in %s: %w", e.snapshots.Dir(), compatErr)
			}
			e.logger.Warn("persisted index is stale, rebuilding", zap.Error(compatErr))
		case errors.Is(err, snapshot.ErrNoSnapshot):
			e.logger.Info("no persisted index, building from source")
		default:
			e.logger.Warn("persisted index unusable, rebuilding", zap.Error(err))
		}
	}
	_, err := e.Rebuild(ctx)
	return err
}

// Rebuild builds a fresh snapshot from the document store and makes it current.
// On failure the previous state is kept.
func (e *Engine) Rebuild(ctx context.Context) (indexer.BuildStats, error) {
	if e.builder == nil {
		return indexer.BuildStats{}, fmt.Errorf("%w: no index builder configured", ErrNotReady)
	}
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	snap, stats, err := e.builder.BuildFromSource(ctx)
	if err != nil {
		e.setLastError(err)
		return stats, fmt.Errorf("build index: %w", err)
	}
	// The previous snapshot is left to the garbage collector since in-flight
	// queries may still hold it.
	e.publish(snap)
	return stats, nil
}

func (e *Engine) publish(snap *snapshot.Snapshot) {
	e.current.Store(snap)
	e.lastErr.Store(nil)
}

func (e *Engine) setLastError(err error) {
	msg := err.Error()
	e.lastErr.Store(&msg)
}

// ready returns the current snapshot or ErrNotReady.
func (e *Engine) ready() (*snapshot.Snapshot, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	return snap, nil
}

// Status describes the engine for health and status reporting.
type Status struct {
	State      string    `json:"state"`
	Size       int       `json:"size"`
	Model      string    `json:"model,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
	Version    string    `json:"version,omitempty"`
	IndexType  string    `json:"index_type,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// Status returns a point-in-time view of the engine.
func (e *Engine) Status() Status {
	st := Status{State: StateUninitialized.String()}
	if msg := e.lastErr.Load(); msg != nil {
		st.LastError = *msg
	}
	snap := e.current.Load()
	if snap == nil {
		return st
	}
	st.State = StateReady.String()
	st.Size = snap.Size()
	st.Model = snap.Model
	st.Dimensions = snap.Dimensions
	st.Version = snap.Version
	st.IndexType = snap.Index.Type()
	st.CreatedAt = snap.CreatedAt
	return st
}

// Close releases the current snapshot and returns the engine to UNINITIALIZED.
func (e *Engine) Close() error {
	if snap := e.current.Swap(nil); snap != nil {
		return snap.Close()
	}
	return nil
}
