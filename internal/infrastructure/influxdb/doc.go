// Package influxdb records actuator output telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every command the
// playback scheduler dispatches becomes one actuator_output point tagged
// with device_id, category and index, so a session can be replayed or
// graphed after the fact.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteActuatorOutput("dev-wand", "scalar", 0, map[string]any{"value": 0.5})
//
// # Error Handling
//
// Writes are non-blocking; batch errors arrive through SetOnError.
// Connection and health check errors are returned directly.
package influxdb
