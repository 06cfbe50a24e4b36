package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/internal/snapshot"
	"github.com/hyperjump/thesislens/internal/vector"
)

// Search embeds query and returns up to k theses in ascending distance order.
// RelevanceScore is the squared L2 distance; lower is more similar.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]models.SearchHit, error) {
	snap, err := e.ready()
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrEmptyInput)
	}
	results, err := e.nearest(ctx, snap, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]models.SearchHit, 0, len(results))
	for _, r := range results {
		rec, err := recordAt(snap, r.Position)
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.SearchHit{
			ID:             rec.ID,
			Title:          rec.Title,
			Author:         rec.Author,
			RelevanceScore: r.Distance,
		})
	}
	return hits, nil
}

// Recommend returns up to k theses closest to the thesis with the given id,
// never including that thesis itself. One extra neighbor is fetched because
// the target is usually its own nearest match. Fewer than k results are
// returned when the corpus is too small; results are never padded.
func (e *Engine) Recommend(ctx context.Context, id string, k int) ([]models.Recommendation, error) {
	snap, err := e.ready()
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: thesis id is required", ErrEmptyInput)
	}
	if err := e.store.ValidateID(id); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	doc, err := e.store.GetDocument(ctx, id, true)
	if err != nil {
		return nil, fmt.Errorf("resolve thesis %s: %w", id, err)
	}
	text := doc.EmbeddingText(true)
	if text == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyContent, id)
	}

	results, err := e.nearest(ctx, snap, text, k+1)
	if err != nil {
		return nil, err
	}
	recs := make([]models.Recommendation, 0, k)
	for _, r := range results {
		rec, err := recordAt(snap, r.Position)
		if err != nil {
			return nil, err
		}
		if rec.ID == id {
			continue
		}
		recs = append(recs, models.Recommendation{
			ID:              rec.ID,
			Title:           rec.Title,
			Author:          rec.Author,
			Abstract:        rec.Abstract,
			SimilarityScore: r.Distance,
		})
		if len(recs) == k {
			break
		}
	}
	return recs, nil
}

func (e *Engine) nearest(ctx context.Context, snap *snapshot.Snapshot, text string, k int) ([]vector.Result, error) {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("embedding failed", zap.Error(err))
		return nil, fmt.Errorf("embed: %w", err)
	}
	results, err := snap.Index.Search(ctx, vec, k)
	if err != nil {
		e.logger.Error("vector search failed", zap.Error(err))
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

func recordAt(snap *snapshot.Snapshot, pos int) (models.MetadataRecord, error) {
	rec, ok := snap.Record(pos)
	if !ok {
		return models.MetadataRecord{}, fmt.Errorf("%w: no metadata at position %d", snapshot.ErrInconsistent, pos)
	}
	return rec, nil
}
