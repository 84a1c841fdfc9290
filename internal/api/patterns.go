package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-haptics/internal/pattern"
)

// createPatternRequest is the JSON form of POST /patterns.
// A text/csv body with a ?name= query parameter is also accepted.
type createPatternRequest struct {
	Name string `json:"name"`
	CSV  string `json:"csv"`
}

// handleListPatterns returns a summary of every library pattern.
func (s *Server) handleListPatterns(w http.ResponseWriter, _ *http.Request) {
	patterns := s.library.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// handleGetPattern returns one pattern with its frames.
func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	p, err := s.library.Get(name)
	if err != nil {
		if errors.Is(err, pattern.ErrPatternNotFound) {
			writeNotFound(w, "pattern not found")
			return
		}
		writeInternalError(w, "failed to get pattern")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":   name,
		"length": p.Length,
		"frames": p.Frames,
	})
}

// handleCreatePattern parses and stores a pattern, replacing any pattern
// already stored under the same name.
func (s *Server) handleCreatePattern(w http.ResponseWriter, r *http.Request) {
	var req createPatternRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeBodyError(w, err)
			return
		}
		req = createPatternRequest{Name: r.URL.Query().Get("name"), CSV: string(body)}
	} else if err := decodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	p, err := pattern.Parse(req.CSV)
	if err != nil {
		writeValidation(w, err.Error())
		return
	}
	if err := s.library.Put(req.Name, p); err != nil {
		writeValidation(w, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.SetPatterns(s.library.Count())
	}

	s.logger.Info("pattern stored", "name", req.Name, "frames", len(p.Frames), "subject", subjectFrom(r.Context()))
	writeJSON(w, http.StatusCreated, pattern.Summary{Name: req.Name, Length: p.Length, Frames: len(p.Frames)})
}

// handleDeletePattern removes a pattern from the library. Actuators
// already playing it are unaffected.
func (s *Server) handleDeletePattern(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.library.Delete(name); err != nil {
		if errors.Is(err, pattern.ErrPatternNotFound) {
			writeNotFound(w, "pattern not found")
			return
		}
		writeInternalError(w, "failed to delete pattern")
		return
	}
	if s.metrics != nil {
		s.metrics.SetPatterns(s.library.Count())
	}

	w.WriteHeader(http.StatusNoContent)
}
