//go:build integration

package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	cfg.TopicPrefix = "haptics-it"
	return cfg
}

func connectOrFail(t *testing.T, clientID string) *Client {
	t.Helper()
	client, err := Connect(integrationConfig(clientID))
	if err != nil {
		t.Fatalf("Connect(%s) error = %v", clientID, err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	pub := connectOrFail(t, "hapticd-it-pub")
	sub := connectOrFail(t, "hapticd-it-sub")

	type command struct {
		Value float64 `json:"value"`
	}

	received := make(chan string, 1)
	var once sync.Once
	err := sub.Subscribe(sub.Topics().AllCommands(), 0, func(topic string, payload []byte) error {
		once.Do(func() { received <- topic + " " + string(payload) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	topic := pub.Topics().Command("dev-wand", "scalar", 1)
	if err := pub.PublishJSON(topic, command{Value: 0.5}, 0, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		want := "haptics-it/command/dev-wand/scalar/1 " + `{"value":0.5}`
		if got != want {
			t.Errorf("received %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for command")
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	connectOrFail(t, "hapticd-it-status")
	watcher := connectOrFail(t, "hapticd-it-watch")

	received := make(chan StatusMessage, 4)
	err := watcher.Subscribe(watcher.Topics().ServiceStatus(), 1, func(_ string, payload []byte) error {
		var msg StatusMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return err
		}
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.Status != StatusOnline {
			t.Errorf("retained status = %q, want %q", msg.Status, StatusOnline)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no retained status received")
	}
}
