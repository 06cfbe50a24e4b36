package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/internal/vector"
)

const (
	// CurrentFileName names the file holding the committed version id.
	CurrentFileName = "CURRENT"
	// FormatVersion is the version of the metadata envelope.
	FormatVersion = 1

	vectorsPrefix  = "vectors-"
	vectorsSuffix  = ".idx"
	metadataPrefix = "metadata-"
	metadataSuffix = ".json"
)

// envelope is the on-disk metadata document.
type envelope struct {
	FormatVersion int                     `json:"format_version"`
	Version       string                  `json:"version"`
	Model         string                  `json:"model"`
	Dimensions    int                     `json:"dimensions"`
	IndexType     string                  `json:"index_type"`
	CreatedAt     time.Time               `json:"created_at"`
	Count         int                     `json:"count"`
	Records       []models.MetadataRecord `json:"records"`
}

// Store saves and loads snapshots in a directory.
type Store struct {
	dir         string
	compression vector.Compression
	logger      *zap.Logger
	mu          sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCompression sets the compression used for flat vector files loaded by this store.
func WithCompression(c vector.Compression) Option {
	return func(s *Store) {
		s.compression = c
	}
}

// NewStore returns a store rooted at dir. The directory is created on first Save.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, compression: vector.CompressionNone, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

// VectorsPath returns the vector file path for version.
func (s *Store) VectorsPath(version string) string {
	return filepath.Join(s.dir, vectorsPrefix+version+vectorsSuffix)
}

// MetadataPath returns the metadata file path for version.
func (s *Store) MetadataPath(version string) string {
	return filepath.Join(s.dir, metadataPrefix+version+metadataSuffix)
}

// Current returns the committed version id, or ErrNoSnapshot.
func (s *Store) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, CurrentFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoSnapshot
		}
		return "", fmt.Errorf("read %s: %w", CurrentFileName, err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("%w: empty %s", ErrInconsistent, CurrentFileName)
	}
	return version, nil
}

// Save writes snap and commits it as the current version, then removes older versions.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if snap.Index.Size() != len(snap.Records) {
		return fmt.Errorf("%w: %d vectors but %d metadata records", ErrInconsistent, snap.Index.Size(), len(snap.Records))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := snap.Index.Save(s.VectorsPath(snap.Version)); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	env := envelope{
		FormatVersion: FormatVersion,
		Version:       snap.Version,
		Model:         snap.Model,
		Dimensions:    snap.Dimensions,
		IndexType:     snap.Index.Type(),
		CreatedAt:     snap.CreatedAt,
		Count:         len(snap.Records),
		Records:       snap.Records,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeFileAtomic(s.MetadataPath(snap.Version), data); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, CurrentFileName), []byte(snap.Version+"\n")); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	syncDir(s.dir)

	s.logger.Info("snapshot saved",
		zap.String("version", snap.Version),
		zap.String("model", snap.Model),
		zap.Int("records", len(snap.Records)))
	s.prune(snap.Version)
	return nil
}

// Load restores the committed snapshot. It returns ErrNoSnapshot when nothing has
// been committed or a data file is missing, and ErrInconsistent when the files do
// not describe the same version with the same number of entries.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.Current()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.MetadataPath(version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: metadata for version %s missing", ErrNoSnapshot, version)
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if _, err := os.Stat(s.VectorsPath(version)); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: vectors for version %s missing", ErrNoSnapshot, version)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrInconsistent, err)
	}
	switch {
	case env.FormatVersion != FormatVersion:
		return nil, fmt.Errorf("%w: unsupported metadata format %d", ErrInconsistent, env.FormatVersion)
	case env.Version != version:
		return nil, fmt.Errorf("%w: metadata version %s, expected %s", ErrInconsistent, env.Version, version)
	case env.Count != len(env.Records):
		return nil, fmt.Errorf("%w: metadata count %d but %d records", ErrInconsistent, env.Count, len(env.Records))
	case env.Dimensions <= 0:
		return nil, fmt.Errorf("%w: invalid dimensions %d", ErrInconsistent, env.Dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx, err := vector.NewIndex(env.IndexType, env.Dimensions, vector.WithCompression(s.compression))
	if err != nil {
		return nil, fmt.Errorf("create %s index: %w", env.IndexType, err)
	}
	if err := idx.Load(s.VectorsPath(version)); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("%w: load vectors: %v", ErrInconsistent, err)
	}
	if idx.Size() != len(env.Records) {
		n := idx.Size()
		_ = idx.Close()
		return nil, fmt.Errorf("%w: %d vectors but %d metadata records", ErrInconsistent, n, len(env.Records))
	}

	s.logger.Info("snapshot loaded",
		zap.String("version", version),
		zap.String("model", env.Model),
		zap.Int("records", len(env.Records)))
	return &Snapshot{
		Version:    version,
		Model:      env.Model,
		Dimensions: env.Dimensions,
		CreatedAt:  env.CreatedAt,
		Index:      idx,
		Records:    env.Records,
	}, nil
}

// prune removes data files of versions other than keep, plus leftover temp files.
func (s *Store) prune(keep string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	keepFiles := map[string]bool{
		filepath.Base(s.VectorsPath(keep)):  true,
		filepath.Base(s.MetadataPath(keep)): true,
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || keepFiles[name] || !isSnapshotFile(name) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn("failed to remove old snapshot file", zap.String("file", name), zap.Error(err))
		}
	}
}

func isSnapshotFile(name string) bool {
	if strings.Contains(name, ".tmp-") {
		return true
	}
	return (strings.HasPrefix(name, vectorsPrefix) && strings.HasSuffix(name, vectorsSuffix)) ||
		(strings.HasPrefix(name, metadataPrefix) && strings.HasSuffix(name, metadataSuffix))
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// syncDir flushes directory entries so the renames survive a crash. Best effort.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}
