package device

import "fmt"

// Device is one entry of the hub's device snapshot.
//
// Capabilities are grouped by message category. List order is the order
// the hub reported and is significant: per-subtype ordinals in address
// expressions count along it.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Actuators by message category
	Rotate []Capability `json:"rotate,omitempty"`
	Linear []Capability `json:"linear,omitempty"`
	Scalar []Capability `json:"scalar,omitempty"`
}

// Capabilities returns the capability list for one category.
func (d *Device) Capabilities(c Category) []Capability {
	switch c {
	case CategoryRotate:
		return d.Rotate
	case CategoryLinear:
		return d.Linear
	case CategoryScalar:
		return d.Scalar
	default:
		return nil
	}
}

// ActuatorCount returns the total number of actuators across all categories.
func (d *Device) ActuatorCount() int {
	return len(d.Rotate) + len(d.Linear) + len(d.Scalar)
}

// DeepCopy creates a complete independent copy of the Device.
// Capability slices are cloned so the registry cache cannot be mutated
// through a returned value.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Rotate = copyCapabilities(d.Rotate)
	cpy.Linear = copyCapabilities(d.Linear)
	cpy.Scalar = copyCapabilities(d.Scalar)
	return &cpy
}

func copyCapabilities(caps []Capability) []Capability {
	if caps == nil {
		return nil
	}
	cpy := make([]Capability, len(caps))
	copy(cpy, caps)
	return cpy
}

// Capability is one actuator on a device.
type Capability struct {
	Index int          `json:"index"` // 0-based, as addressed on the wire
	Type  ActuatorType `json:"type"`
}

// ActuatorType is the physical subtype of an actuator.
type ActuatorType string

// ActuatorType constants.
const (
	ActuatorVibrate   ActuatorType = "vibrate"
	ActuatorRotate    ActuatorType = "rotate"
	ActuatorOscillate ActuatorType = "oscillate"
	ActuatorConstrict ActuatorType = "constrict"
	ActuatorInflate   ActuatorType = "inflate"
	ActuatorPosition  ActuatorType = "position"
)

// AllActuatorTypes returns all valid actuator subtypes.
func AllActuatorTypes() []ActuatorType {
	return []ActuatorType{
		ActuatorVibrate, ActuatorRotate, ActuatorOscillate,
		ActuatorConstrict, ActuatorInflate, ActuatorPosition,
	}
}

// Category is the command family an actuator accepts.
type Category string

// Category constants.
const (
	CategoryRotate Category = "rotate"
	CategoryLinear Category = "linear"
	CategoryScalar Category = "scalar"
)

// AllCategories returns the categories in resolution order.
func AllCategories() []Category {
	return []Category{CategoryRotate, CategoryLinear, CategoryScalar}
}

// FeatureKey identifies one addressable actuator.
// It is comparable and safe to use as a map key.
type FeatureKey struct {
	DeviceID string   `json:"device_id"`
	Category Category `json:"category"`
	Index    int      `json:"index"`
}

func (k FeatureKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.DeviceID, k.Category, k.Index)
}

// Status is the last intended physical state of one actuator.
//
// It is implemented only by RotateStatus, LinearStatus and ScalarStatus.
// All three are comparable value types, so two statuses are equal exactly
// when a == b.
type Status interface {
	Category() Category
	isStatus()
}

// RotateStatus is the state of a rotate-category actuator.
type RotateStatus struct {
	Clockwise bool    `json:"clockwise"`
	Speed     float64 `json:"speed"`
}

// LinearStatus is the state of a linear-category actuator.
type LinearStatus struct {
	Position float64 `json:"position"`
	Speed    float64 `json:"speed"`
}

// ScalarStatus is the state of a scalar-category actuator.
type ScalarStatus struct {
	Value float64 `json:"value"`
}

func (RotateStatus) Category() Category { return CategoryRotate }
func (LinearStatus) Category() Category { return CategoryLinear }
func (ScalarStatus) Category() Category { return CategoryScalar }

func (RotateStatus) isStatus() {}
func (LinearStatus) isStatus() {}
func (ScalarStatus) isStatus() {}

// ZeroStatus returns the resting state for a category. It reports false for
// an unknown category.
func ZeroStatus(c Category) (Status, bool) {
	switch c {
	case CategoryRotate:
		return RotateStatus{Clockwise: true}, true
	case CategoryLinear:
		return LinearStatus{}, true
	case CategoryScalar:
		return ScalarStatus{}, true
	default:
		return nil, false
	}
}
