package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // ms, paho takes uint
	defaultKeepAlive         = 60 * time.Second

	maxQoS = 2
)

// Service status values published on Topics.ServiceStatus.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusMessage is the retained payload on the service status topic.
type StatusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// buildClientOptions maps the mqtt config section onto paho options:
// tcp or ssl broker URL, optional credentials, clean sessions and
// automatic reconnect between the configured delays.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker.Host, cfg.Broker.Port)
	if cfg.Broker.TLS {
		broker = fmt.Sprintf("ssl://%s:%d", cfg.Broker.Host, cfg.Broker.Port)
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.Broker.ClientID).
		// Commands are latest-wins; nothing is worth replaying from a stale session.
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive).
		// An older retained device list must never overwrite a newer one.
		SetOrderMatters(true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// configureLWT registers a retained QoS 1 offline status as the Last Will.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	opts.SetBinaryWill(topics.ServiceStatus(), statusPayload(StatusOffline, clientID, "unexpected_disconnect"), 1, true)
}

// statusPayload marshals a StatusMessage stamped with the current time.
func statusPayload(status, clientID, reason string) []byte {
	msg := StatusMessage{status, clientID, reason, time.Now().UTC().Format(time.RFC3339)}
	payload, _ := json.Marshal(msg) //nolint:errcheck // string fields only
	return payload
}
