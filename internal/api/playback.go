package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
	"github.com/nerrad567/gray-logic-haptics/internal/history"
	"github.com/nerrad567/gray-logic-haptics/internal/pattern"
	"github.com/nerrad567/gray-logic-haptics/internal/playback"
)

// historyWriteTimeout bounds recording one playback action.
const historyWriteTimeout = 2 * time.Second

// startRequest is the body of POST /playback/start.
type startRequest struct {
	Address string `json:"address"`
	Pattern string `json:"pattern"`
	Loop    bool   `json:"loop"`
}

// stopRequest is the body of POST /playback/stop.
type stopRequest struct {
	Address string `json:"address"`
}

// PlaybackEvent is the payload of playback.started and playback.stopped.
type PlaybackEvent struct {
	Address string              `json:"address"`
	Pattern string              `json:"pattern,omitempty"`
	Loop    bool                `json:"loop,omitempty"`
	Keys    []device.FeatureKey `json:"keys"`
	Subject string              `json:"subject,omitempty"`
}

// handleListPlayback returns the actuators currently playing a pattern.
func (s *Server) handleListPlayback(w http.ResponseWriter, r *http.Request) {
	active, err := s.player.Active(r.Context())
	if err != nil {
		s.writePlaybackError(w, err)
		return
	}
	if active == nil {
		active = []playback.ActiveAssignment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active": active,
		"count":  len(active),
	})
}

// handleStartPlayback starts a library pattern on every actuator the
// address resolves to.
func (s *Server) handleStartPlayback(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeBadRequest(w, "address is required")
		return
	}
	if req.Pattern == "" {
		writeBadRequest(w, "pattern is required")
		return
	}

	p, err := s.library.Get(req.Pattern)
	if err != nil {
		if errors.Is(err, pattern.ErrPatternNotFound) {
			writeNotFound(w, "pattern not found")
			return
		}
		writeInternalError(w, "failed to get pattern")
		return
	}

	keys, err := s.player.StartPattern(r.Context(), req.Address, p, req.Loop, playback.WithName(req.Pattern))
	if err != nil {
		s.writePlaybackError(w, err)
		return
	}

	event := PlaybackEvent{
		Address: req.Address,
		Pattern: req.Pattern,
		Loop:    req.Loop,
		Keys:    keys,
		Subject: subjectFrom(r.Context()),
	}
	s.recordHistory(r.Context(), history.KindStart, event)
	s.hub.Broadcast(ChannelPlaybackStarted, event)

	writeJSON(w, http.StatusOK, event)
}

// handleStopPlayback stops every actuator the address resolves to.
// Actuators that were not playing are ignored.
func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeBadRequest(w, "address is required")
		return
	}

	keys, err := s.player.StopPattern(r.Context(), req.Address)
	if err != nil {
		s.writePlaybackError(w, err)
		return
	}
	if keys == nil {
		keys = []device.FeatureKey{}
	}

	event := PlaybackEvent{
		Address: req.Address,
		Keys:    keys,
		Subject: subjectFrom(r.Context()),
	}
	s.recordHistory(r.Context(), history.KindStop, event)
	s.hub.Broadcast(ChannelPlaybackStopped, event)

	writeJSON(w, http.StatusOK, event)
}

// writePlaybackError maps scheduler errors to HTTP responses.
func (s *Server) writePlaybackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, playback.ErrNoTargets):
		writeValidation(w, "address matched no actuators")
	case errors.Is(err, playback.ErrNilPattern):
		writeValidation(w, "pattern has no frames")
	case errors.Is(err, playback.ErrNotRunning):
		writeUnavailable(w, "scheduler is not running")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeUnavailable(w, "request cancelled")
	default:
		s.logger.Error("playback request failed", "error", err)
		writeInternalError(w, "playback request failed")
	}
}

// recordHistory stores a playback action. Failures are logged only: the
// action has already taken effect.
func (s *Server) recordHistory(ctx context.Context, kind history.Kind, event PlaybackEvent) {
	if s.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()

	source := "api"
	if event.Subject != "" {
		source = "api:" + event.Subject
	}
	err := s.history.Record(ctx, &history.Event{
		Kind:    kind,
		Address: event.Address,
		Pattern: event.Pattern,
		Loop:    event.Loop,
		Keys:    event.Keys,
		Source:  source,
	})
	if err != nil {
		s.logger.Warn("failed to record playback history", "kind", kind, "address", event.Address, "error", err)
	}
}
