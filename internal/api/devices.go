package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
)

// handleListDevices returns the current hub device snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.ListDevices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// resolveResponse is the body of GET /resolve.
type resolveResponse struct {
	Address string              `json:"address"`
	Units   []string            `json:"units"`
	Keys    []device.FeatureKey `json:"keys"`
	Errors  []string            `json:"errors"`
}

// handleResolve dry-runs an address expression against the current
// snapshot. Diagnostics are returned to the caller instead of being
// broadcast.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("address")
	if strings.TrimSpace(expr) == "" {
		writeBadRequest(w, "address query parameter is required")
		return
	}

	var diagnostics []string
	sink := device.ErrorSinkFunc(func(message string) {
		diagnostics = append(diagnostics, message)
	})

	units := device.ParseAddress(expr, nil)
	targets := device.Resolve(s.registry.ListDevices(), expr, sink)

	resp := resolveResponse{
		Address: expr,
		Units:   make([]string, 0, len(units)),
		Keys:    device.Keys(targets),
		Errors:  diagnostics,
	}
	for _, u := range units {
		resp.Units = append(resp.Units, u.String())
	}
	if resp.Keys == nil {
		resp.Keys = []device.FeatureKey{}
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}
