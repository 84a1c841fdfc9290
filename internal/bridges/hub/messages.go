package hub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
)

// MQTT message types exchanged with the device hub.

// DeviceListMessage is the retained list of connected devices.
// Topic: {prefix}/hub/devices
// QoS: 1, Retained: Yes
type DeviceListMessage struct {
	// Timestamp is when the hub produced the list (UTC, RFC3339).
	Timestamp time.Time `json:"timestamp"`

	// Devices in the hub's own order; that order is preserved.
	Devices []device.Device `json:"devices"`
}

// CommandMessage sets one actuator.
// Topic: {prefix}/command/{device_id}/{category}/{index}
// QoS: 0, Retained: No
//
// Only the fields for the actuator's category are present:
//
//	rotate: clockwise, speed
//	linear: position, speed
//	scalar: value
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time       `json:"timestamp"`
	DeviceID  string          `json:"device_id"`
	Category  device.Category `json:"category"`
	Index     int             `json:"index"`

	Clockwise *bool    `json:"clockwise,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Position  *float64 `json:"position,omitempty"`
	Value     *float64 `json:"value,omitempty"`
}

// NewCommandMessage builds the command for status addressed to key.
// The status category must match key.Category.
func NewCommandMessage(id string, ts time.Time, key device.FeatureKey, status device.Status) (CommandMessage, error) {
	if status == nil {
		return CommandMessage{}, fmt.Errorf("%w: nil status for %s", ErrInvalidCommand, key)
	}
	if status.Category() != key.Category {
		return CommandMessage{}, fmt.Errorf("%w: %s status for %s", ErrInvalidCommand, status.Category(), key)
	}

	msg := CommandMessage{
		ID:        id,
		Timestamp: ts.UTC(),
		DeviceID:  key.DeviceID,
		Category:  key.Category,
		Index:     key.Index,
	}

	switch st := status.(type) {
	case device.RotateStatus:
		msg.Clockwise = &st.Clockwise
		msg.Speed = &st.Speed
	case device.LinearStatus:
		msg.Position = &st.Position
		msg.Speed = &st.Speed
	case device.ScalarStatus:
		msg.Value = &st.Value
	}
	return msg, nil
}

// Status rebuilds the typed status carried by the message.
// Missing fields decode as zero.
func (m CommandMessage) Status() (device.Status, error) {
	deref := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}

	switch m.Category {
	case device.CategoryRotate:
		return device.RotateStatus{Clockwise: m.Clockwise != nil && *m.Clockwise, Speed: deref(m.Speed)}, nil
	case device.CategoryLinear:
		return device.LinearStatus{Position: deref(m.Position), Speed: deref(m.Speed)}, nil
	case device.CategoryScalar:
		return device.ScalarStatus{Value: deref(m.Value)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidCommand, m.Category)
	}
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the hub applied the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the hub could not apply the command.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent by the hub after handling a command.
// Topic: {prefix}/ack/{device_id}/{category}/{index}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    AckStatus `json:"status"`

	// Error describes the failure when Status is "failed".
	Error string `json:"error,omitempty"`
}

// Hub health values.
const (
	HubOnline  = "online"
	HubOffline = "offline"
)

// HealthMessage reports whether the hub is running.
// Topic: {prefix}/hub/health
// QoS: 1, Retained: Yes (also the hub's LWT)
type HealthMessage struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// parseHealth accepts either a HealthMessage or a bare "online"/"offline"
// payload, as brokers commonly publish for LWTs.
func parseHealth(payload []byte) (HealthMessage, error) {
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err == nil {
		msg.Status = strings.ToLower(strings.TrimSpace(msg.Status))
		if msg.Status == HubOnline || msg.Status == HubOffline {
			return msg, nil
		}
		return HealthMessage{}, fmt.Errorf("unknown hub status %q", msg.Status)
	}

	switch s := strings.ToLower(strings.TrimSpace(string(payload))); s {
	case HubOnline, HubOffline:
		return HealthMessage{Status: s}, nil
	default:
		return HealthMessage{}, fmt.Errorf("unrecognised hub health payload %q", s)
	}
}
