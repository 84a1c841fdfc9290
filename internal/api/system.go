package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-haptics/internal/bridges/hub"
	"github.com/nerrad567/gray-logic-haptics/internal/process"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Devices   int            `json:"devices"`
	Patterns  int            `json:"patterns"`
	Playing   int            `json:"playing"`
	WebSocket int            `json:"websocket_clients"`
	Hub       *HubHealth     `json:"hub,omitempty"`
	HubProc   *process.Stats `json:"hub_process,omitempty"`
}

// HubHealth reports the broker link and the hub's own health.
type HubHealth struct {
	Connected bool      `json:"connected"`
	Online    bool      `json:"online"`
	Stats     hub.Stats `json:"stats"`
}

// handleHealth reports "ok", or "degraded" when the broker link or the
// hub is down. It always answers 200 so load balancers can tell a
// degraded daemon from a dead one.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   s.version,
		Devices:   s.registry.Count(),
		Patterns:  s.library.Count(),
		WebSocket: s.hub.ClientCount(),
	}

	if active, err := s.player.Active(r.Context()); err == nil {
		resp.Playing = len(active)
	} else {
		resp.Status = "degraded"
	}

	if s.hubLink != nil {
		h := &HubHealth{
			Connected: s.hubLink.Connected(),
			Online:    s.hubLink.HubOnline(),
			Stats:     s.hubLink.Stats(),
		}
		if !h.Connected || !h.Online {
			resp.Status = "degraded"
		}
		resp.Hub = h
	}

	if s.hubProc != nil {
		stats := s.hubProc.Stats()
		if stats.Status != process.StatusRunning {
			resp.Status = "degraded"
		}
		resp.HubProc = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleMetrics serves Prometheus metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeNotFound(w, "metrics are not enabled")
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}
