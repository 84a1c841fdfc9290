package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-haptics/internal/history"
)

// handleListHistory returns recorded playback actions, newest first.
//
// Query parameters: kind (start|stop), address, pattern, since (RFC 3339),
// limit, offset.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "playback history is not available")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		Kind:    history.Kind(q.Get("kind")),
		Address: q.Get("address"),
		Pattern: q.Get("pattern"),
	}

	if filter.Kind != "" && filter.Kind != history.KindStart && filter.Kind != history.KindStop {
		writeBadRequest(w, "kind must be start or stop")
		return
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list playback history", "error", err)
		writeInternalError(w, "failed to list playback history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
