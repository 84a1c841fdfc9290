package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-haptics/internal/bridges/hub"
	"github.com/nerrad567/gray-logic-haptics/internal/device"
	"github.com/nerrad567/gray-logic-haptics/internal/history"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-haptics/internal/pattern"
	"github.com/nerrad567/gray-logic-haptics/internal/playback"
	"github.com/nerrad567/gray-logic-haptics/internal/process"
)

// shutdownGrace bounds how long Close waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// Player starts and stops patterns. *playback.Scheduler implements it.
type Player interface {
	StartPattern(ctx context.Context, expr string, p *pattern.Pattern, loop bool, opts ...playback.StartOption) ([]device.FeatureKey, error)
	StopPattern(ctx context.Context, expr string) ([]device.FeatureKey, error)
	Active(ctx context.Context) ([]playback.ActiveAssignment, error)
}

// HubLink reports on the hub connection. *hub.Bridge implements it.
type HubLink interface {
	Connected() bool
	HubOnline() bool
	Stats() hub.Stats
}

// Supervisor reports on a managed hub process. *process.Manager implements it.
type Supervisor interface {
	Stats() process.Stats
}

// Deps is everything New needs. Logger, Registry, Library and Player are
// required; the rest switch features off when nil.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Library  *pattern.Library
	Player   Player
	History  history.Repository // playback actions go unrecorded without it
	Metrics  *metrics.Metrics   // /metrics answers 404 without it
	HubLink  HubLink
	HubProc  Supervisor // set only when hapticd manages the hub
	Events   *Hub       // created by New when nil
	Version  string
}

// Server is the hapticd control API: REST under /api/v1 plus the
// WebSocket event stream.
type Server struct {
	cfg      config.APIConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	registry *device.Registry
	library  *pattern.Library
	player   Player
	history  history.Repository
	metrics  *metrics.Metrics
	hubLink  HubLink
	hubProc  Supervisor
	version  string
	hub      *Hub
	tickets  *ticketStore

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New validates deps and returns an unstarted Server.
func New(deps Deps) (*Server, error) {
	var missing []error
	for _, req := range []struct {
		name   string
		absent bool
	}{
		{"logger", deps.Logger == nil},
		{"device registry", deps.Registry == nil},
		{"pattern library", deps.Library == nil},
		{"player", deps.Player == nil},
	} {
		if req.absent {
			missing = append(missing, fmt.Errorf("api: %s is required", req.name))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	events := deps.Events
	if events == nil {
		events = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:      deps.Config,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		registry: deps.Registry,
		library:  deps.Library,
		player:   deps.Player,
		history:  deps.History,
		metrics:  deps.Metrics,
		hubLink:  deps.HubLink,
		hubProc:  deps.HubProc,
		version:  deps.Version,
		hub:      events,
		tickets:  newTicketStore(),
	}, nil
}

// Events returns the hub that fans events out to WebSocket clients.
func (s *Server) Events() *Hub {
	return s.hub
}

// Start binds the listen address and serves in the background. A bind
// failure, such as the port being taken, is returned here. The event hub
// and ticket sweeper run until Close or until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}

	bg, cancel := context.WithCancel(ctx)
	s.cancel, s.listener = cancel, ln
	go s.hub.Run(bg)
	go s.cleanTicketsLoop(bg)

	read := time.Duration(s.cfg.Timeouts.Read) * time.Second
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	tls := s.cfg.TLS
	s.logger.Info("API server listening", "address", ln.Addr().String(), "tls", tls.Enabled)
	go func() {
		var err error
		if tls.Enabled {
			err = s.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops background work and shuts the listener down, giving
// in-flight requests up to shutdownGrace to finish. Hijacked WebSocket
// connections are closed by the event hub, not here.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has succeeded.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
