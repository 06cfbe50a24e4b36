package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmptyBuild is returned when an index is built from zero vectors.
	ErrEmptyBuild = errors.New("cannot build index from zero vectors")
	// ErrCorruptIndex is returned when a persisted index cannot be decoded.
	ErrCorruptIndex = errors.New("corrupt index file")
	// ErrFAISSUnavailable is returned when FAISS support is not compiled in.
	ErrFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install FAISS library")
)

// DimensionMismatchError reports a vector whose length differs from the index dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

func checkDimensions(expected int, v []float32) error {
	if len(v) != expected {
		return &DimensionMismatchError{Expected: expected, Actual: len(v)}
	}
	return nil
}
