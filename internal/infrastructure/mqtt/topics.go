package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for Homeview's own MQTT traffic.
//
// Device topics are user-defined and live anywhere in the broker's
// namespace; only Homeview's service topics are namespaced here.
const (
	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "homeview/system"

	// TopicPrefixUI is the base for UI notification topics.
	TopicPrefixUI = "homeview/ui"
)

// Topics provides builders for Homeview MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// SystemStatus returns the service status topic.
// Online/offline payloads (including the LWT) are published here, retained.
//
// Example: homeview/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemTime returns the time sync topic.
//
// Example: homeview/system/time
func (Topics) SystemTime() string {
	return fmt.Sprintf("%s/time", TopicPrefixSystem)
}

// UINotification returns the notification topic for a specific UI client.
//
// Example: homeview/ui/session-abc123/notification
func (Topics) UINotification(clientID string) string {
	return fmt.Sprintf("%s/%s/notification", TopicPrefixUI, clientID)
}

// AllTopics returns the catch-all subscription pattern.
// The reconciliation loop subscribes to this to observe unmatched device
// traffic for auto-detection.
//
// Pattern: #
func (Topics) AllTopics() string {
	return "#"
}

// IsService reports whether a topic belongs to Homeview's own namespace.
// Service traffic is excluded from device matching and auto-detection.
func (Topics) IsService(topic string) bool {
	return strings.HasPrefix(topic, "homeview/")
}
