package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "haptics"

// Topic kinds for per-actuator topics.
const (
	KindCommand = "command"
	KindAck     = "ack"
)

// Topics provides builders for the device hub topic hierarchy.
//
//	{prefix}/hub/devices                              retained device list
//	{prefix}/hub/health                               hub online/offline
//	{prefix}/command/{device_id}/{category}/{index}   actuator commands
//	{prefix}/ack/{device_id}/{category}/{index}       command acknowledgements
//	{prefix}/hapticd/status                           service status (LWT)
//
// Using these helpers keeps topic naming consistent between the client,
// the hub bridge and tests.
type Topics struct {
	Prefix string
}

// NewTopics returns builders rooted at prefix. Leading and trailing
// slashes are stripped; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// ServiceStatus returns the retained status topic for hapticd itself.
//
// Example: haptics/hapticd/status
func (t Topics) ServiceStatus() string {
	return t.root() + "/hapticd/status"
}

// HubDevices returns the retained device list topic published by the hub.
//
// Example: haptics/hub/devices
func (t Topics) HubDevices() string {
	return t.root() + "/hub/devices"
}

// HubHealth returns the hub's online/offline topic.
//
// Example: haptics/hub/health
func (t Topics) HubHealth() string {
	return t.root() + "/hub/health"
}

// Command returns the command topic for one actuator.
//
// Example: haptics/command/dev-wand/scalar/0
func (t Topics) Command(deviceID, category string, index int) string {
	return t.feature(KindCommand, deviceID, category, index)
}

// Ack returns the acknowledgement topic for one actuator.
//
// Example: haptics/ack/dev-wand/scalar/0
func (t Topics) Ack(deviceID, category string, index int) string {
	return t.feature(KindAck, deviceID, category, index)
}

func (t Topics) feature(kind, deviceID, category string, index int) string {
	return fmt.Sprintf("%s/%s/%s/%s/%d", t.root(), kind, deviceID, category, index)
}

// AllCommands returns a pattern matching every actuator command.
//
// Pattern: haptics/command/+/+/+
func (t Topics) AllCommands() string {
	return t.root() + "/" + KindCommand + "/+/+/+"
}

// AllAcks returns a pattern matching every acknowledgement.
//
// Pattern: haptics/ack/+/+/+
func (t Topics) AllAcks() string {
	return t.root() + "/" + KindAck + "/+/+/+"
}

// ParseFeature splits a per-actuator topic of the given kind back into
// its device ID, category and index. ok is false if the topic does not
// belong to this prefix and kind or the index is not a non-negative integer.
func (t Topics) ParseFeature(topic, kind string) (deviceID, category string, index int, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/"+kind+"/")
	if !found {
		return "", "", 0, false
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", 0, false
	}

	index, err := strconv.Atoi(parts[2])
	if err != nil || index < 0 {
		return "", "", 0, false
	}
	return parts[0], parts[1], index, true
}
