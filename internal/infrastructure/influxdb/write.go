package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementActuatorOutput holds one point per dispatched actuator command.
const MeasurementActuatorOutput = "actuator_output"

// WriteActuatorOutput records the status sent to one actuator.
//
// Tags are device_id, category and index; fields come from the command
// (value, speed, position, clockwise). The write is non-blocking.
//
// Example:
//
//	client.WriteActuatorOutput("dev-wand", "scalar", 0, map[string]any{"value": 0.5})
func (c *Client) WriteActuatorOutput(deviceID, category string, index int, fields map[string]any) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(actuatorPoint(deviceID, category, index, fields, c.now()))
}

func actuatorPoint(deviceID, category string, index int, fields map[string]any, t time.Time) *write.Point {
	return write.NewPoint(
		MeasurementActuatorOutput,
		map[string]string{
			"device_id": deviceID,
			"category":  category,
			"index":     strconv.Itoa(index),
		},
		fields,
		t,
	)
}

// WritePoint writes a custom point stamped with the current time.
//
// Example:
//
//	client.WritePoint("scheduler",
//	    map[string]string{"host": "bench-01"},
//	    map[string]any{"active": 4})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, c.now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
