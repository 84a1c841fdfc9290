package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{"Lovense Edge", nil},
		{"Wand 2", nil},
		{"  padded  ", nil},
		{strings.Repeat("a", maxNameLength), nil},
		{"", ErrInvalidName},
		{"   ", ErrInvalidName},
		{strings.Repeat("a", maxNameLength+1), ErrInvalidName},
	}

	for _, tt := range tests {
		err := ValidateName(tt.input)
		if tt.want == nil {
			assert.NoError(t, err, "ValidateName(%q)", tt.input)
			continue
		}
		assert.ErrorIs(t, err, tt.want, "ValidateName(%q)", tt.input)
	}
}

func TestValidateActuatorType(t *testing.T) {
	for _, at := range AllActuatorTypes() {
		assert.NoError(t, ValidateActuatorType(at), "ValidateActuatorType(%q)", at)
	}
	assert.ErrorIs(t, ValidateActuatorType("suck"), ErrInvalidActuatorType)
	assert.ErrorIs(t, ValidateActuatorType(""), ErrInvalidActuatorType)
}

// wand is a two-motor vibrator with one rotator, the shape most
// validation cases start from.
func wand() *Device {
	return &Device{
		ID:     "dev-1",
		Name:   "Wand",
		Scalar: []Capability{{Index: 0, Type: ActuatorVibrate}, {Index: 1, Type: ActuatorVibrate}},
		Rotate: []Capability{{Index: 0, Type: ActuatorRotate}},
	}
}

func TestValidateDevice(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Device)
		want   error
	}{
		{"valid device", func(*Device) {}, nil},
		{"no actuators", func(d *Device) { d.Rotate, d.Scalar = nil, nil }, nil},
		{"same index in different categories", func(d *Device) {
			d.Linear = []Capability{{Index: 0, Type: ActuatorPosition}}
		}, nil},
		{"blank id", func(d *Device) { d.ID = " " }, ErrInvalidDevice},
		{"id too long", func(d *Device) { d.ID = strings.Repeat("x", maxIDLength+1) }, ErrInvalidDevice},
		{"id with topic separator", func(d *Device) { d.ID = "hub/dev-1" }, ErrInvalidDevice},
		{"id with single-level wildcard", func(d *Device) { d.ID = "dev+1" }, ErrInvalidDevice},
		{"id with multi-level wildcard", func(d *Device) { d.ID = "dev#" }, ErrInvalidDevice},
		{"missing name", func(d *Device) { d.Name = "" }, ErrInvalidName},
		{"negative index", func(d *Device) { d.Scalar[0].Index = -1 }, ErrInvalidCapability},
		{"index past range", func(d *Device) { d.Scalar[0].Index = maxIndex + 1 }, ErrInvalidCapability},
		{"repeated index in one category", func(d *Device) { d.Scalar[1].Index = 0 }, ErrInvalidCapability},
		{"unknown actuator type", func(d *Device) { d.Rotate[0].Type = "spin" }, ErrInvalidActuatorType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := wand()
			tt.mutate(d)
			err := ValidateDevice(d)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateDevice_Nil(t *testing.T) {
	assert.ErrorIs(t, ValidateDevice(nil), ErrInvalidDevice)
}

func TestValidateCapabilities_TooMany(t *testing.T) {
	caps := make([]Capability, maxCapabilities+1)
	for i := range caps {
		caps[i] = Capability{Index: i, Type: ActuatorVibrate}
	}
	assert.ErrorIs(t, ValidateCapabilities(caps), ErrInvalidCapability)
	assert.NoError(t, ValidateCapabilities(caps[:maxCapabilities]))
}
