package device

import "sync/atomic"

// Logger is satisfied by *logging.Logger.
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

// snapshot is one device list as reported by the hub. It is never
// modified after publication.
type snapshot struct {
	order []*Device
	byID  map[string]*Device
}

var emptySnapshot = &snapshot{byID: map[string]*Device{}}

// Registry holds the latest device list from the hub.
//
// Each hub message replaces the list wholesale. Readers see either the
// old or the new list, never a mix, and get deep copies in hub order so
// that resolving against ListDevices is deterministic. Safe for
// concurrent use.
type Registry struct {
	current atomic.Pointer[snapshot]
	logger  Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{logger: noopLogger{}}
	r.current.Store(emptySnapshot)
	return r
}

// SetLogger must be called before the registry is shared.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Replace publishes devices as the new list and returns how many were
// kept. Devices failing ValidateDevice and repeated IDs are logged and
// dropped; the survivors keep their order.
func (r *Registry) Replace(devices []Device) int {
	next := &snapshot{
		order: make([]*Device, 0, len(devices)),
		byID:  make(map[string]*Device, len(devices)),
	}

	for i := range devices {
		d := &devices[i]
		if err := ValidateDevice(d); err != nil {
			r.logger.Warn("ignoring invalid device", "device_id", d.ID, "error", err)
			continue
		}
		if next.byID[d.ID] != nil {
			r.logger.Warn("ignoring duplicate device", "device_id", d.ID)
			continue
		}
		owned := d.DeepCopy()
		next.order = append(next.order, owned)
		next.byID[owned.ID] = owned
	}

	r.current.Store(next)
	r.logger.Info("device snapshot replaced", "count", len(next.order), "rejected", len(devices)-len(next.order))
	return len(next.order)
}

// ListDevices returns a copy of every device in hub order.
func (r *Registry) ListDevices() []Device {
	snap := r.current.Load()
	out := make([]Device, len(snap.order))
	for i, d := range snap.order {
		out[i] = *d.DeepCopy()
	}
	return out
}

// GetDevice returns a copy of the device with id, or ErrDeviceNotFound.
func (r *Registry) GetDevice(id string) (*Device, error) {
	d, ok := r.current.Load().byID[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// Count returns the size of the current list.
func (r *Registry) Count() int {
	return len(r.current.Load().order)
}
