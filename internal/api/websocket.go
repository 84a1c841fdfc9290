package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/logging"
)

// Message types on the event socket.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Event channels clients can subscribe to.
const (
	ChannelAddressError    = "address.error"
	ChannelPlaybackStarted = "playback.started"
	ChannelPlaybackStopped = "playback.stopped"
	ChannelDevicesUpdated  = "devices.updated"
)

var knownChannels = map[string]bool{
	ChannelAddressError:    true,
	ChannelPlaybackStarted: true,
	ChannelPlaybackStopped: true,
	ChannelDevicesUpdated:  true,
}

const (
	// eventQueueSize is the per-client outbound buffer. Events for a client
	// whose buffer is full are dropped.
	eventQueueSize = 256

	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 8192
)

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// inbound is a client frame with its payload left undecoded.
type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tickets are only issued to authenticated callers.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans scheduler and registry events out to WebSocket clients.
//
// Subscriptions are indexed by channel so Broadcast only touches the
// clients that asked for it.
type Hub struct {
	logger *logging.Logger

	pingInterval time.Duration
	pongWait     time.Duration
	readLimit    int64

	mu       sync.RWMutex
	clients  map[*eventClient]struct{}
	channels map[string]map[*eventClient]struct{}

	dropped atomic.Uint64
}

// NewHub returns a hub using cfg for keepalive timing and frame limits.
// Zero values fall back to defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		logger:       logger,
		pingInterval: time.Duration(cfg.PingInterval) * time.Second,
		pongWait:     time.Duration(cfg.PongTimeout) * time.Second,
		readLimit:    int64(cfg.MaxMessageSize),
		clients:      make(map[*eventClient]struct{}),
		channels:     make(map[string]map[*eventClient]struct{}),
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.pongWait <= 0 {
		h.pongWait = defaultPongTimeout
	}
	if h.readLimit <= 0 {
		h.readLimit = defaultMaxMessageSize
	}
	return h
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*eventClient]struct{})
	h.channels = make(map[string]map[*eventClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Broadcast delivers payload as an event on channel to its subscribers.
// It never blocks on a slow client.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	subs := make([]*eventClient, 0, len(h.channels[channel]))
	for c := range h.channels[channel] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		if !c.enqueue(data) {
			h.dropped.Add(1)
			h.logger.Warn("dropping event for slow websocket client",
				"channel", channel, "subject", c.subject)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded for full client buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) add(c *eventClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

// remove detaches c from the hub and its channels. It reports whether c
// was still attached.
func (h *Hub) remove(c *eventClient) bool {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	for ch, subs := range h.channels {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
	}
	return ok
}

func (h *Hub) subscribe(c *eventClient, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, ch := range channels {
		subs := h.channels[ch]
		if subs == nil {
			subs = make(map[*eventClient]struct{})
			h.channels[ch] = subs
		}
		subs[c] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *eventClient, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		if subs := h.channels[ch]; subs != nil {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.channels, ch)
			}
		}
	}
}

// ─── Connection handling ────────────────────────────────────────────

// handleWebSocket upgrades an authenticated request to an event socket.
// The caller proves identity with a ticket from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	subject, ok := s.tickets.redeem(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &eventClient{
		hub:     s.hub,
		conn:    conn,
		subject: subject,
		out:     make(chan []byte, eventQueueSize),
	}
	s.hub.add(c)

	go c.writeLoop()
	go c.readLoop()
}

// eventClient is one connected socket.
type eventClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string // token subject the ticket was issued to

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

// enqueue queues data without blocking. It returns false when the client
// is closed or its buffer is full.
func (c *eventClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

// close stops the write loop; the write loop closes the connection.
func (c *eventClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *eventClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	deadline := c.hub.pingInterval + c.hub.pongWait
	c.conn.SetReadLimit(c.hub.readLimit)
	//nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Application frames count as liveness too; some browsers never
		// answer protocol pings.
		//nolint:errcheck // a failed deadline surfaces as a read error
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.dispatch(data)
	}
}

func (c *eventClient) writeLoop() {
	ping := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close() //nolint:errcheck,gosec // connection is being discarded
	}()

	for {
		select {
		case data, ok := <-c.out:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongWait))
			if !ok {
				//nolint:errcheck // peer may already be gone
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			//nolint:errcheck // a failed deadline surfaces as a write error
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one client frame.
func (c *eventClient) dispatch(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)

	case WSTypeSubscribe, WSTypeUnsubscribe:
		var req WSSubscribePayload
		if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &req) != nil {
			c.reply(msg.ID, WSTypeError, errorPayload("invalid "+msg.Type+" payload"))
			return
		}
		if msg.Type == WSTypeUnsubscribe {
			c.hub.unsubscribe(c, req.Channels)
			c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": req.Channels})
			return
		}
		for _, ch := range req.Channels {
			if !knownChannels[ch] {
				c.reply(msg.ID, WSTypeError, errorPayload("unknown channel: "+ch))
				return
			}
		}
		c.hub.subscribe(c, req.Channels)
		c.hub.logger.Debug("websocket client subscribed", "subject", c.subject, "channels", req.Channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": req.Channels})

	default:
		c.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

func (c *eventClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
