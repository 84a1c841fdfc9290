// Package hub bridges hapticd and the device hub over MQTT.
//
// The hub owns the physical devices. It publishes a retained list of
// connected devices and applies per-actuator commands. This package
// turns that list into registry updates and turns scheduler output into
// CommandMessages.
//
// Topics (prefix from mqtt.topic_prefix, default "haptics"):
//
//	haptics/hub/devices                              hub → hapticd, retained
//	haptics/hub/health                               hub → hapticd, retained
//	haptics/command/{device_id}/{category}/{index}   hapticd → hub, QoS 0
//	haptics/ack/{device_id}/{category}/{index}       hub → hapticd
//
// Usage:
//
//	bridge, err := hub.NewBridge(hub.BridgeOptions{
//	    MQTT:     client,
//	    Registry: registry,
//	    Topics:   client.Topics(),
//	})
//	if err := bridge.Start(ctx); err != nil {
//	    return err
//	}
//	sched := playback.New(registry, bridge, opts)
package hub
