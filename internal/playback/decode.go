package playback

import "github.com/nerrad567/gray-logic-haptics/internal/device"

// Frame value scaling.
const (
	rotateSpeedScale    = 100
	linearPositionScale = 200
	scalarValueScale    = 100
)

// decode turns one frame's raw values into statuses for a category.
//
// Rotate consumes (clockwise flag, speed) pairs, linear consumes
// (position, speed) pairs and scalar consumes single values. A trailing
// incomplete pair is skipped; trailing reports how many values were left
// over. ok is false for an unknown category.
func decode(c device.Category, values []float64) (statuses []device.Status, trailing int, ok bool) {
	switch c {
	case device.CategoryRotate:
		for i := 0; i+1 < len(values); i += 2 {
			statuses = append(statuses, device.RotateStatus{
				Clockwise: values[i] != 0,
				Speed:     values[i+1] / rotateSpeedScale,
			})
		}
		return statuses, len(values) % 2, true

	case device.CategoryLinear:
		for i := 0; i+1 < len(values); i += 2 {
			statuses = append(statuses, device.LinearStatus{
				Position: values[i] / linearPositionScale,
				Speed:    values[i+1],
			})
		}
		return statuses, len(values) % 2, true

	case device.CategoryScalar:
		for _, v := range values {
			statuses = append(statuses, device.ScalarStatus{Value: v / scalarValueScale})
		}
		return statuses, 0, true

	default:
		return nil, 0, false
	}
}
