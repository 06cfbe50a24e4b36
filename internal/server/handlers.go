package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/internal/search"
	"github.com/hyperjump/thesislens/internal/storage"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Search.DefaultTopK, s.config.Search.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	hits, err := s.engine.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.respondEngineError(w, "search", err)
		return
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	s.respondJSON(w, http.StatusOK, models.SearchResponse{
		Results:   hits,
		Query:     req.Query,
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Search.DefaultTopK, s.config.Search.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("recommend request", zap.String("thesis_id", req.ThesisID), zap.Int("top_k", req.TopK))
	recs, err := s.engine.Recommend(r.Context(), req.ThesisID, req.TopK)
	if err != nil {
		s.respondEngineError(w, "recommend", err)
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	s.respondJSON(w, http.StatusOK, models.RecommendResponse{
		Recommendations: recs,
		ThesisID:        req.ThesisID,
		QueryTime:       time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"index":  s.engine.State().String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"index": s.engine.Status(),
	}
	if s.store != nil {
		if err := storage.Ping(r.Context(), s.store); err != nil {
			s.logger.Warn("status: store unreachable", zap.Error(err))
			resp["store_reachable"] = false
			resp["store_error"] = err.Error()
		} else if n, err := s.store.CountDocuments(r.Context()); err != nil {
			s.logger.Warn("status: count documents failed", zap.Error(err))
			resp["store_reachable"] = true
			resp["store_error"] = err.Error()
		} else {
			resp["store_reachable"] = true
			resp["documents"] = n
		}
	}
	configInfo := map[string]interface{}{
		"store_driver":         s.config.Store.Driver,
		"embedding_provider":   s.config.Embedding.Provider,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"index_type":           s.config.Index.Type,
		"index_dir":            s.config.Index.Dir,
		"warmup":               s.config.Index.Warmup,
		"use_full_text":        s.config.Index.UseFullText,
	}
	if bytes, err := storage.DiskUsageBytes(s.config.Index.Dir); err == nil {
		resp["disk_usage_bytes"] = bytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// statusForError maps query errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, search.ErrEmptyInput), errors.Is(err, storage.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrEmptyContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, search.ErrNotReady), errors.Is(err, storage.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondEngineError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
		msg = "internal server error during " + op
	} else {
		s.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	if errors.Is(err, search.ErrNotReady) {
		msg = "search index not initialized"
	}
	s.respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
