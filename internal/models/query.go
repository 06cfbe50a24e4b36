package models

import (
	"fmt"
	"strings"
)

// Result count limits applied when a request does not configure its own.
const (
	DefaultTopK = 5
	MaxTopK     = 100
)

// SearchRequest is a free-text similarity query.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate trims the query, rejects it when blank, and normalizes TopK.
// A non-positive defaultTopK or maxTopK falls back to the package limits.
func (r *SearchRequest) Validate(defaultTopK, maxTopK int) error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	r.TopK = clampTopK(r.TopK, defaultTopK, maxTopK)
	return nil
}

// RecommendRequest asks for theses similar to ThesisID.
type RecommendRequest struct {
	ThesisID string `json:"thesis_id"`
	TopK     int    `json:"top_k,omitempty"`
}

// Validate trims the id, rejects it when missing, and normalizes TopK.
func (r *RecommendRequest) Validate(defaultTopK, maxTopK int) error {
	r.ThesisID = strings.TrimSpace(r.ThesisID)
	if r.ThesisID == "" {
		return fmt.Errorf("thesis_id is required")
	}
	r.TopK = clampTopK(r.TopK, defaultTopK, maxTopK)
	return nil
}

func clampTopK(k, def, max int) int {
	if def <= 0 {
		def = DefaultTopK
	}
	if max <= 0 {
		max = MaxTopK
	}
	if k <= 0 {
		k = def
	}
	if k > max {
		k = max
	}
	return k
}
