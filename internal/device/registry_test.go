package device

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDevices() []Device {
	return []Device{
		{
			ID:     "dev-b",
			Name:   "Wand",
			Scalar: []Capability{{Index: 0, Type: ActuatorVibrate}},
		},
		{
			ID:     "dev-a",
			Name:   "Stroker",
			Linear: []Capability{{Index: 0, Type: ActuatorPosition}},
		},
	}
}

func TestRegistry_ReplaceKeepsHubOrder(t *testing.T) {
	r := NewRegistry()

	n := r.Replace(sampleDevices())
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, r.Count())

	devices := r.ListDevices()
	require.Len(t, devices, 2)
	assert.Equal(t, "dev-b", devices[0].ID)
	assert.Equal(t, "dev-a", devices[1].ID)
}

func TestRegistry_ReplaceDropsInvalidAndDuplicates(t *testing.T) {
	r := NewRegistry()

	devices := append(sampleDevices(),
		Device{ID: "", Name: "No ID"},
		Device{ID: "dev-b", Name: "Second Wand"},
		Device{ID: "dev-c", Name: "Bad", Scalar: []Capability{{Index: 0, Type: "zap"}}},
	)

	assert.Equal(t, 2, r.Replace(devices))

	d, err := r.GetDevice("dev-b")
	require.NoError(t, err)
	assert.Equal(t, "Wand", d.Name, "first occurrence wins")

	_, err = r.GetDevice("dev-c")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestRegistry_ReplaceSwapsWholeSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Replace(sampleDevices())

	r.Replace([]Device{{ID: "dev-z", Name: "Cage"}})

	assert.Equal(t, 1, r.Count())
	_, err := r.GetDevice("dev-a")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestRegistry_ReturnsDeepCopies(t *testing.T) {
	r := NewRegistry()
	input := sampleDevices()
	r.Replace(input)

	// Mutating the input after Replace must not leak in.
	input[0].Scalar[0].Type = ActuatorInflate

	listed := r.ListDevices()
	listed[0].Scalar[0].Index = 9
	listed[0].Name = "changed"

	got, err := r.GetDevice("dev-b")
	require.NoError(t, err)
	assert.Equal(t, "Wand", got.Name)
	assert.Equal(t, Capability{Index: 0, Type: ActuatorVibrate}, got.Scalar[0])

	got.Scalar[0].Index = 5
	again, _ := r.GetDevice("dev-b")
	assert.Equal(t, 0, again.Scalar[0].Index)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Replace(sampleDevices())
		}()
		go func() {
			defer wg.Done()
			_ = r.ListDevices()
			_, _ = r.GetDevice("dev-a")
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, r.Count())
}

func TestDevice_DeepCopyNil(t *testing.T) {
	var d *Device
	assert.Nil(t, d.DeepCopy())
}

func TestZeroStatus(t *testing.T) {
	tests := []struct {
		category Category
		want     Status
	}{
		{CategoryRotate, RotateStatus{Clockwise: true, Speed: 0}},
		{CategoryLinear, LinearStatus{Position: 0, Speed: 0}},
		{CategoryScalar, ScalarStatus{Value: 0}},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			got, ok := ZeroStatus(tt.category)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.category, got.Category())
		})
	}

	_, ok := ZeroStatus("bogus")
	assert.False(t, ok)
}

func TestStatusEquality(t *testing.T) {
	var a, b Status = ScalarStatus{Value: 0.5}, ScalarStatus{Value: 0.5}
	assert.True(t, a == b)

	b = ScalarStatus{Value: 0.6}
	assert.False(t, a == b)

	// Same field values in a different variant are not equal.
	var r, l Status = RotateStatus{Speed: 0}, LinearStatus{Speed: 0}
	assert.False(t, r == l)
}

func TestFeatureKey_String(t *testing.T) {
	k := FeatureKey{DeviceID: "dev-1", Category: CategoryScalar, Index: 2}
	assert.Equal(t, "dev-1/scalar/2", k.String())
}
