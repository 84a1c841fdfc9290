package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter mounts every route under /api/v1. Health, metrics and the
// WebSocket upgrade are public; the upgrade authenticates with a ticket
// issued by POST /auth/ws-ticket. Everything else needs a bearer token.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		s.corsMiddleware,
		s.bodySizeLimitMiddleware,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/health", s.handleHealth)
		v1.Get("/metrics", s.handleMetrics)
		v1.Get("/ws", s.handleWebSocket)

		authed := v1.With(s.authMiddleware)
		authed.Post("/auth/ws-ticket", s.handleWSTicket)

		authed.Get("/devices", s.handleListDevices)
		authed.Get("/devices/{id}", s.handleGetDevice)
		authed.Get("/resolve", s.handleResolve)

		authed.Get("/patterns", s.handleListPatterns)
		authed.Post("/patterns", s.handleCreatePattern)
		authed.Get("/patterns/{name}", s.handleGetPattern)
		authed.Delete("/patterns/{name}", s.handleDeletePattern)

		authed.Get("/playback", s.handleListPlayback)
		authed.Post("/playback/start", s.handleStartPlayback)
		authed.Post("/playback/stop", s.handleStopPlayback)

		authed.Get("/history", s.handleListHistory)
	})
	return r
}
