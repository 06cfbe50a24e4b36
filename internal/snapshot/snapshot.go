// Package snapshot persists a vector index together with its positional metadata
// as one versioned unit.
//
// A snapshot directory holds vectors-<version>.idx, metadata-<version>.json and a
// CURRENT file naming the committed version. Both data files are written and synced
// before CURRENT is replaced, so readers only ever see a complete pair.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/internal/vector"
)

var (
	// ErrNoSnapshot is returned when no committed snapshot exists or one of its files is missing.
	ErrNoSnapshot = errors.New("no persisted snapshot")
	// ErrInconsistent is returned when the vector and metadata files do not form a valid pair.
	ErrInconsistent = errors.New("inconsistent snapshot")
	// ErrStale is returned when a snapshot was built with a different embedding model.
	ErrStale = errors.New("snapshot built with a different model")
)

// Snapshot is an immutable vector index plus the metadata record for every position.
type Snapshot struct {
	Version    string
	Model      string
	Dimensions int
	CreatedAt  time.Time
	Index      vector.Index
	Records    []models.MetadataRecord
}

// New pairs idx with records, which must have one entry per indexed vector.
// A fresh version id is assigned.
func New(idx vector.Index, records []models.MetadataRecord, model string) (*Snapshot, error) {
	if idx == nil {
		return nil, fmt.Errorf("snapshot index is nil")
	}
	if idx.Size() != len(records) {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata records", ErrInconsistent, idx.Size(), len(records))
	}
	return &Snapshot{
		Version:    uuid.NewString(),
		Model:      model,
		Dimensions: idx.Dimensions(),
		CreatedAt:  time.Now().UTC(),
		Index:      idx,
		Records:    records,
	}, nil
}

// Size returns the number of entries.
func (s *Snapshot) Size() int {
	return len(s.Records)
}

// Record returns the metadata at position pos.
func (s *Snapshot) Record(pos int) (models.MetadataRecord, bool) {
	if pos < 0 || pos >= len(s.Records) {
		return models.MetadataRecord{}, false
	}
	return s.Records[pos], true
}

// CheckCompatible reports whether vectors from an embedder with the given model
// and dimension can be searched against s. A dimension mismatch returns a
// *vector.DimensionMismatchError; a model mismatch returns ErrStale.
func (s *Snapshot) CheckCompatible(model string, dimensions int) error {
	if s.Dimensions != dimensions {
		return &vector.DimensionMismatchError{Expected: dimensions, Actual: s.Dimensions}
	}
	if s.Model != model {
		return fmt.Errorf("%w: snapshot %q, embedder %q", ErrStale, s.Model, model)
	}
	return nil
}

// Close releases the index.
func (s *Snapshot) Close() error {
	if s.Index == nil {
		return nil
	}
	return s.Index.Close()
}
