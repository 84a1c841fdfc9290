package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
)

// Logger receives connection events and handler failures.
// *logging.Logger and *slog.Logger both satisfy it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler processes one received message.
//
// Handlers run on paho's delivery goroutine and should not block.
// A returned error is logged; it does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// hooks are the caller-supplied callbacks, swapped as a unit.
type hooks struct {
	logger       Logger
	onConnect    func()
	onDisconnect func(err error)
}

// Client is the broker link shared by the hub bridge and the service
// status topic.
//
// All methods are safe for concurrent use. Subscriptions survive
// reconnects: paho starts a clean session each time and the client
// replays every tracked subscription from its OnConnect handler.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	connected atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hookMu sync.RWMutex
	hooks  hooks
}

// Connect dials the broker described by cfg and waits for the first
// connection. The Last Will marks hapticd offline on the service status
// topic if the link drops without Close.
//
// Returns an error wrapping ErrConnectionFailed if the broker does not
// accept the connection within the connect timeout.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: no answer from %s:%d within %v",
			ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnect runs asynchronously; report connected as soon as Connect returns.
	c.connected.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		cfg:           cfg,
		topics:        NewTopics(cfg.TopicPrefix),
		subscriptions: make(map[string]subscription),
		hooks:         hooks{logger: noopLogger{}},
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.currentHooks().logger.Info("reconnecting to MQTT broker")
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// Topics returns the topic builders for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) setConnected(v bool) {
	c.connected.Store(v)
}

func (c *Client) currentHooks() hooks {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.hooks
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	c.publishStatus(StatusOnline, "")

	h := c.currentHooks()
	h.logger.Info("connected to MQTT broker", "subscriptions", c.SubscriptionCount())
	if h.onConnect != nil {
		h.onConnect()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	h := c.currentHooks()
	h.logger.Warn("MQTT connection lost", "error", err)
	if h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		subs = append(subs, s)
	}
	c.subMu.RUnlock()

	for _, s := range subs {
		// Not waited on: this runs inside paho's connect callback.
		c.client.Subscribe(s.topic, s.qos, c.wrapHandler(s.handler))
	}
}

func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	return c.client.Publish(c.topics.ServiceStatus(), 1, true,
		statusPayload(status, c.cfg.Broker.ClientID, reason))
}

// Close publishes a retained offline status and disconnects.
// Closing an unconnected or nil client is not an error.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(StatusOffline, "graceful_shutdown").WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect sets a callback run after the first connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.hookMu.Lock()
	c.hooks.onConnect = callback
	c.hookMu.Unlock()
}

// SetOnDisconnect sets a callback run when the link drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hookMu.Lock()
	c.hooks.onDisconnect = callback
	c.hookMu.Unlock()
}

// SetLogger routes connection events and handler failures to logger.
// A nil logger discards them.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.hookMu.Lock()
	c.hooks.logger = logger
	c.hookMu.Unlock()
}

// wrapHandler adapts a MessageHandler to paho. Handler errors are logged
// and panics are recovered so one bad payload cannot kill delivery.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if r := recover(); r != nil {
				c.currentHooks().logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}()

		if err := handler(topic, msg.Payload()); err != nil {
			c.currentHooks().logger.Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
