package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/mqtt"
)

// QoS levels per topic.
const (
	// commandQoS is 0: commands are latest-wins and a late retry would
	// only replay a stale frame.
	commandQoS byte = 0

	subscribeQoS byte = 1
)

// MQTTClient is the subset of *mqtt.Client the bridge needs.
// This allows mocking in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// DeviceRegistry receives each device list the hub publishes.
// *device.Registry implements it.
type DeviceRegistry interface {
	Replace(devices []device.Device) int
}

// Logger is the logging surface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	MQTT     MQTTClient
	Registry DeviceRegistry
	Topics   mqtt.Topics
	Logger   Logger

	// OnDevicesUpdated, if set, is called after each accepted device
	// list with the number of devices now in the registry.
	OnDevicesUpdated func(count int)
}

// Stats are cumulative bridge counters.
type Stats struct {
	CommandsSent    uint64 `json:"commands_sent"`
	PublishFailures uint64 `json:"publish_failures"`
	AcksReceived    uint64 `json:"acks_received"`
	AcksFailed      uint64 `json:"acks_failed"`
	DeviceLists     uint64 `json:"device_lists"`
}

// Bridge connects the playback scheduler and device registry to the hub.
//
// It handles:
//   - Publishing one CommandMessage per dispatched status (Send)
//   - Feeding the retained device list into the registry
//   - Correlating acknowledgements with the latest command per actuator
//   - Tracking hub health
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	registry DeviceRegistry
	topics   mqtt.Topics
	logger   Logger
	onDevs   func(count int)
	now      func() time.Time
	newID    func() string

	started   atomic.Bool
	hubOnline atomic.Bool

	// latest command ID per actuator, for ack correlation.
	latest   map[device.FeatureKey]string
	latestMu sync.Mutex

	// lastListAt guards against an older device list replacing a newer one.
	lastListAt time.Time
	listMu     sync.Mutex

	commandsSent    atomic.Uint64
	publishFailures atomic.Uint64
	acksReceived    atomic.Uint64
	acksFailed      atomic.Uint64
	deviceLists     atomic.Uint64
}

// NewBridge validates opts and returns an unstarted bridge.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: mqtt client", ErrMissingDependency)
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: device registry", ErrMissingDependency)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	topics := opts.Topics
	if topics.Prefix == "" {
		topics = mqtt.NewTopics("")
	}

	return &Bridge{
		mqtt:     opts.MQTT,
		registry: opts.Registry,
		topics:   topics,
		logger:   logger,
		onDevs:   opts.OnDevicesUpdated,
		now:      time.Now,
		newID:    uuid.NewString,
		latest:   make(map[device.FeatureKey]string),
	}, nil
}

// Start subscribes to the device list, acknowledgement and health topics.
// The device list is retained, so the registry is populated as soon as
// the broker delivers it.
func (b *Bridge) Start(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.topics.HubDevices(), b.handleDeviceList},
		{b.topics.HubHealth(), b.handleHealth},
		{b.topics.AllAcks(), b.handleAck},
	}

	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.mqtt.Subscribe(s.topic, subscribeQoS, s.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}

	b.started.Store(true)
	b.logger.Info("hub bridge started", "prefix", b.topics.Prefix)
	return nil
}

// Send publishes status to the actuator named by key.
// It implements playback.Sender.
//
// Errors wrap ErrPublishFailed (broker rejected or unreachable),
// ErrInvalidCommand (status category mismatch) or the context error.
func (b *Bridge) Send(ctx context.Context, key device.FeatureKey, status device.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.started.Load() {
		return ErrNotStarted
	}

	msg, err := NewCommandMessage(b.newID(), b.now(), key, status)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrPublishFailed, err)
	}

	topic := b.topics.Command(key.DeviceID, string(key.Category), key.Index)
	if err := b.mqtt.Publish(topic, payload, commandQoS, false); err != nil {
		b.publishFailures.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, key, err)
	}

	b.latestMu.Lock()
	b.latest[key] = msg.ID
	b.latestMu.Unlock()

	b.commandsSent.Add(1)
	return nil
}

// HubOnline reports the last health status received from the hub.
// It is false until the first health message arrives.
func (b *Bridge) HubOnline() bool {
	return b.hubOnline.Load()
}

// Connected reports whether the broker link is up.
func (b *Bridge) Connected() bool {
	return b.mqtt.IsConnected()
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		CommandsSent:    b.commandsSent.Load(),
		PublishFailures: b.publishFailures.Load(),
		AcksReceived:    b.acksReceived.Load(),
		AcksFailed:      b.acksFailed.Load(),
		DeviceLists:     b.deviceLists.Load(),
	}
}

// ===== MQTT handlers =====

func (b *Bridge) handleDeviceList(_ string, payload []byte) error {
	var msg DeviceListMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding device list: %w", err)
	}

	b.listMu.Lock()
	if !msg.Timestamp.IsZero() && msg.Timestamp.Before(b.lastListAt) {
		b.listMu.Unlock()
		b.logger.Warn("ignoring stale device list",
			"timestamp", msg.Timestamp, "latest", b.lastListAt)
		return nil
	}
	if !msg.Timestamp.IsZero() {
		b.lastListAt = msg.Timestamp
	}
	count := b.registry.Replace(msg.Devices)
	b.listMu.Unlock()

	b.pruneLatest(msg.Devices)
	b.deviceLists.Add(1)
	b.logger.Info("device list received", "devices", count, "reported", len(msg.Devices))

	if b.onDevs != nil {
		b.onDevs(count)
	}
	return nil
}

// pruneLatest forgets ack correlation for devices that disappeared.
func (b *Bridge) pruneLatest(devices []device.Device) {
	present := make(map[string]bool, len(devices))
	for i := range devices {
		present[devices[i].ID] = true
	}

	b.latestMu.Lock()
	defer b.latestMu.Unlock()
	for key := range b.latest {
		if !present[key.DeviceID] {
			delete(b.latest, key)
		}
	}
}

func (b *Bridge) handleAck(topic string, payload []byte) error {
	deviceID, category, index, ok := b.topics.ParseFeature(topic, mqtt.KindAck)
	if !ok {
		return fmt.Errorf("unexpected ack topic %q", topic)
	}
	key := device.FeatureKey{DeviceID: deviceID, Category: device.Category(category), Index: index}

	var ack AckMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("decoding ack for %s: %w", key, err)
	}
	b.acksReceived.Add(1)

	b.latestMu.Lock()
	latestID := b.latest[key]
	b.latestMu.Unlock()

	if ack.Status == AckFailed {
		b.acksFailed.Add(1)
		b.logger.Warn("hub rejected command",
			"key", key.String(),
			"command_id", ack.CommandID,
			"latest", ack.CommandID == latestID,
			"error", ack.Error,
		)
		return nil
	}

	b.logger.Debug("command acknowledged", "key", key.String(), "command_id", ack.CommandID)
	return nil
}

func (b *Bridge) handleHealth(_ string, payload []byte) error {
	msg, err := parseHealth(payload)
	if err != nil {
		return err
	}

	online := msg.Status == HubOnline
	if was := b.hubOnline.Swap(online); was != online {
		if online {
			b.logger.Info("hub online")
		} else {
			b.logger.Warn("hub offline", "reason", msg.Reason)
		}
	}
	return nil
}
