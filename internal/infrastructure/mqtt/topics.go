package mqtt

import "fmt"

// TopicPrefix is the root of every HomeSense topic.
const TopicPrefix = "homesense"

// Topics provides builders for HomeSense MQTT topics.
//
//	topic := mqtt.Topics{}.SceneEvent()
//	// Returns: "homesense/event/scene"
type Topics struct{}

// SystemState returns the retained system snapshot topic.
//
// Example: homesense/state/system
func (Topics) SystemState() string {
	return fmt.Sprintf("%s/state/system", TopicPrefix)
}

// SceneEvent returns the topic for scene execution results.
//
// Example: homesense/event/scene
func (Topics) SceneEvent() string {
	return fmt.Sprintf("%s/event/scene", TopicPrefix)
}

// Telemetry returns the topic for a telemetry stream.
//
// Example: homesense/telemetry/environment
func (Topics) Telemetry(stream string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicPrefix, stream)
}

// SystemStatus returns the online/offline status topic used for the LWT.
//
// Example: homesense/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefix)
}
