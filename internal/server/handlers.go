package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/shiboru/internal/models"
	"github.com/hyperjump/shiboru/internal/scroll"
	"github.com/hyperjump/shiboru/internal/search"
)

type documentInput struct {
	Fields     map[string][]string `json:"fields"`
	SortValues map[string]int64    `json:"sort_values,omitempty"`
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	var input documentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(input.Fields) == 0 {
		s.respondError(w, http.StatusBadRequest, "document has no fields")
		return
	}
	doc := s.manager.Add(input.Fields, input.SortValues)
	s.respondJSON(w, http.StatusCreated, map[string]any{"doc": doc, "status": "indexed"})
}

func (s *Server) handleDeleteByTerm(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	term := r.URL.Query().Get("term")
	if field == "" || term == "" {
		s.respondError(w, http.StatusBadRequest, "field and term query parameters are required")
		return
	}
	s.manager.DeleteByTerm(field, term)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// buildRequest translates a wire payload into an execution request, applying
// the configured defaults and bounds.
func (s *Server) buildRequest(p *searchPayload) (*models.SearchRequest, error) {
	query, err := p.Query.toQuery()
	if err != nil {
		return nil, err
	}
	req := models.NewSearchRequest(query)
	req.Size = s.config.Search.DefaultSize
	if p.Size != nil {
		req.Size = *p.Size
	}
	if req.Size > s.config.Search.MaxSize {
		req.Size = s.config.Search.MaxSize
	}
	if p.PostFilter != nil {
		req.PostFilter, err = p.PostFilter.toQuery()
		if err != nil {
			return nil, fmt.Errorf("post_filter: %w", err)
		}
	}
	if p.MinScore != nil {
		req.MinScore = *p.MinScore
	}
	req.TerminateAfter = p.TerminateAfter
	req.TrackTotalHits = s.config.Search.TrackTotalHitsOrDefault()
	if p.TrackTotalHits != nil {
		req.TrackTotalHits = *p.TrackTotalHits
	}
	req.Sort = toSortSpec(p.Sort)
	return req, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var payload searchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := s.buildRequest(&payload)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var scrollID string
	if payload.Scroll {
		// The session re-runs the same request for later pages; persist it
		// without the scroll flag so continuation cannot re-open a session.
		stored := payload
		stored.Scroll = false
		raw, err := json.Marshal(&stored)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		scrollID, err = s.sessions.Create(r.Context(), string(raw))
		if err != nil {
			s.logger.Error("failed to create scroll session", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.Scroll = models.NewScrollState()
	}

	resp, status, err := s.execute(r, req, scrollID)
	if err != nil {
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type scrollContinueRequest struct {
	ScrollID string `json:"scroll_id"`
}

func (s *Server) handleScrollContinue(w http.ResponseWriter, r *http.Request) {
	var body scrollContinueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ScrollID == "" {
		s.respondError(w, http.StatusBadRequest, "scroll_id is required")
		return
	}
	state, stored, err := s.sessions.Get(r.Context(), body.ScrollID)
	if err != nil {
		if errors.Is(err, scroll.ErrSessionNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var payload searchPayload
	if err := json.Unmarshal([]byte(stored), &payload); err != nil {
		s.respondError(w, http.StatusInternalServerError, "corrupt scroll session")
		return
	}
	req, err := s.buildRequest(&payload)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Scroll = state

	resp, status, err := s.execute(r, req, body.ScrollID)
	if err != nil {
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// execute runs one request, persisting scroll state when the request belongs
// to a session.
func (s *Server) execute(r *http.Request, req *models.SearchRequest, scrollID string) (*searchResponse, int, error) {
	start := time.Now()
	sc := &search.Context{Request: req}
	result, err := s.executor.Execute(r.Context(), sc, s.manager.Reader())
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		if errors.Is(err, models.ErrInvalidRequest) {
			return nil, http.StatusBadRequest, err
		}
		return nil, http.StatusInternalServerError, err
	}
	if scrollID != "" {
		_, stored, err := s.sessions.Get(r.Context(), scrollID)
		if err == nil {
			err = s.sessions.Save(r.Context(), scrollID, stored, req.Scroll)
		}
		if err != nil {
			s.logger.Error("failed to persist scroll state", zap.Error(err))
			return nil, http.StatusInternalServerError, err
		}
	}
	return toResponse(result, scrollID, time.Since(start).Milliseconds()), http.StatusOK, nil
}

func (s *Server) handleScrollClear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reader := s.manager.Reader()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"documents": s.manager.DocCount(),
		"live":      reader.LiveDocCount(),
		"segments":  len(reader.Segments()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
