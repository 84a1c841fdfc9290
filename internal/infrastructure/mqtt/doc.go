// Package mqtt provides the MQTT client hapticd uses to talk to the
// device hub.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and backoff
//   - Publishing with QoS validation and a payload size cap
//   - Tracked subscriptions that survive reconnects
//   - Last Will and Testament on the service status topic
//   - The hub topic hierarchy (see Topics)
//
// # Architecture
//
// The hub owns the physical devices. It publishes the connected device
// list and consumes per-actuator commands; hapticd never talks to a
// device directly.
//
//	hapticd ↔ MQTT broker ↔ device hub ↔ devices
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.HubDevices(), 1, onDeviceList)
//	err = client.Publish(topics.Command("dev-wand", "scalar", 0), payload, 0, false)
package mqtt
