package device

import (
	"fmt"
	"strings"
)

// Validation constants.
const (
	maxIDLength     = 128
	maxNameLength   = 100
	maxCapabilities = 64 // per category
	maxIndex        = 255
)

// Pre-computed validation set for O(1) lookups.
var validActuatorTypes map[ActuatorType]struct{}

func init() {
	validActuatorTypes = make(map[ActuatorType]struct{}, len(AllActuatorTypes()))
	for _, t := range AllActuatorTypes() {
		validActuatorTypes[t] = struct{}{}
	}
}

// ValidateDevice checks a device reported by the hub.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	id := strings.TrimSpace(d.ID)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if len(d.ID) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidDevice, maxIDLength)
	}
	// IDs become a single MQTT topic level.
	if strings.ContainsAny(d.ID, "/+#") {
		return fmt.Errorf("%w: id must not contain '/', '+' or '#'", ErrInvalidDevice)
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	for _, cat := range AllCategories() {
		if err := ValidateCapabilities(d.Capabilities(cat)); err != nil {
			return fmt.Errorf("%s: %w", cat, err)
		}
	}

	return nil
}

// ValidateName checks that a device name is non-blank and within length.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateActuatorType checks that t is a known subtype.
func ValidateActuatorType(t ActuatorType) error {
	if _, ok := validActuatorTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidActuatorType, t)
	}
	return nil
}

// ValidateCapabilities checks one category's capability list: indexes must
// be in range and unique, subtypes must be known.
func ValidateCapabilities(caps []Capability) error {
	if len(caps) > maxCapabilities {
		return fmt.Errorf("%w: more than %d actuators", ErrInvalidCapability, maxCapabilities)
	}

	seen := make(map[int]struct{}, len(caps))
	for _, c := range caps {
		if c.Index < 0 || c.Index > maxIndex {
			return fmt.Errorf("%w: index %d out of range", ErrInvalidCapability, c.Index)
		}
		if _, dup := seen[c.Index]; dup {
			return fmt.Errorf("%w: duplicate index %d", ErrInvalidCapability, c.Index)
		}
		seen[c.Index] = struct{}{}

		if err := ValidateActuatorType(c.Type); err != nil {
			return err
		}
	}
	return nil
}
