// Package storage provides read access to the external thesis document store.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/thesislens/internal/models"
)

var (
	// ErrStoreUnavailable means the store could not be reached or failed to answer.
	// It is distinct from an empty result.
	ErrStoreUnavailable = errors.New("document store unavailable")
	// ErrNotFound means no thesis has the requested id.
	ErrNotFound = errors.New("thesis not found")
	// ErrInvalidID means the id is syntactically malformed for this store.
	ErrInvalidID = errors.New("invalid thesis id")
)

// DocumentStore is the read-only view of the thesis collection used by the index
// builder and the recommender.
type DocumentStore interface {
	CountDocuments(ctx context.Context) (int64, error)
	// ListDocuments returns every thesis in store order. FullText is only
	// populated when includeFullText is set.
	ListDocuments(ctx context.Context, includeFullText bool) ([]*models.ThesisDocument, error)
	GetDocument(ctx context.Context, id string, includeFullText bool) (*models.ThesisDocument, error)
	// ValidateID reports ErrInvalidID for ids this store can never hold.
	ValidateID(id string) error
	Close() error
}

// Pinger is implemented by stores that can check reachability without a query.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping reports whether store is reachable. Stores without a Ping method are
// assumed reachable.
func Ping(ctx context.Context, store DocumentStore) error {
	if p, ok := store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// DocumentWriter is implemented by stores that accept imported theses.
type DocumentWriter interface {
	UpsertDocument(ctx context.Context, doc *models.ThesisDocument) error
}
