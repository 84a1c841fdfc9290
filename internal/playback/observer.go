package playback

import (
	"time"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
)

// Observer receives scheduler activity for metrics and telemetry.
//
// TickCompleted is called from the Run goroutine; CommandSent and
// SendFailed from the dispatcher goroutine. Implementations must not block.
type Observer interface {
	TickCompleted(duration time.Duration, active, changed int)
	CommandSent(key device.FeatureKey, status device.Status)
	SendFailed(key device.FeatureKey, err error)
}

type noopObserver struct{}

func (noopObserver) TickCompleted(time.Duration, int, int)        {}
func (noopObserver) CommandSent(device.FeatureKey, device.Status) {}
func (noopObserver) SendFailed(device.FeatureKey, error)          {}

// Observers fans every call out to each member in order.
type Observers []Observer

func (o Observers) TickCompleted(d time.Duration, active, changed int) {
	for _, obs := range o {
		obs.TickCompleted(d, active, changed)
	}
}

func (o Observers) CommandSent(key device.FeatureKey, status device.Status) {
	for _, obs := range o {
		obs.CommandSent(key, status)
	}
}

func (o Observers) SendFailed(key device.FeatureKey, err error) {
	for _, obs := range o {
		obs.SendFailed(key, err)
	}
}

// TelemetryWriter records actuator output points.
// *influxdb.Client implements it.
type TelemetryWriter interface {
	WriteActuatorOutput(deviceID, category string, index int, fields map[string]any)
}

// TelemetryObserver writes every delivered command as a telemetry point.
type TelemetryObserver struct {
	Writer TelemetryWriter
}

func (TelemetryObserver) TickCompleted(time.Duration, int, int) {}
func (TelemetryObserver) SendFailed(device.FeatureKey, error)   {}

// CommandSent writes the delivered status.
func (o TelemetryObserver) CommandSent(key device.FeatureKey, status device.Status) {
	o.Writer.WriteActuatorOutput(key.DeviceID, string(key.Category), key.Index, StatusFields(status))
}

// StatusFields flattens a status into named numeric fields.
func StatusFields(status device.Status) map[string]any {
	switch st := status.(type) {
	case device.RotateStatus:
		clockwise := 0
		if st.Clockwise {
			clockwise = 1
		}
		return map[string]any{"clockwise": clockwise, "speed": st.Speed}
	case device.LinearStatus:
		return map[string]any{"position": st.Position, "speed": st.Speed}
	case device.ScalarStatus:
		return map[string]any{"value": st.Value}
	default:
		return map[string]any{}
	}
}
