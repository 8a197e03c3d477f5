package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "playout"

// Topics builds the engine's MQTT topics under a common prefix.
//
//	topics := mqtt.NewTopics("playout")
//	topics.ScheduleExecuted("cg-studio-a")
//	// Returns: "playout/event/schedule-executed/cg-studio-a"
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	prefix string
}

// NewTopics returns topic builders rooted at prefix.
func NewTopics(prefix string) Topics {
	return Topics{prefix: strings.TrimSuffix(prefix, "/")}
}

// Prefix returns the root every topic is built under.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// =============================================================================
// Outbound
// =============================================================================

// SystemStatus is the retained online/offline topic, also used for the LWT.
//
// Example: playout/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.Prefix())
}

// ScheduleExecuted carries one message per command execution.
//
// Example: playout/event/schedule-executed/router-main
func (t Topics) ScheduleExecuted(deviceID string) string {
	return fmt.Sprintf("%s/event/schedule-executed/%s", t.Prefix(), deviceID)
}

// LinkState carries retained link state for one device.
//
// Example: playout/state/link/router-main
func (t Topics) LinkState(deviceID string) string {
	return fmt.Sprintf("%s/state/link/%s", t.Prefix(), deviceID)
}

// =============================================================================
// Inbound
// =============================================================================

// ScheduleCommand asks a running engine to act on one schedule.
//
// Example: playout/command/schedule/evening-bumper
func (t Topics) ScheduleCommand(scheduleID string) string {
	return fmt.Sprintf("%s/command/schedule/%s", t.Prefix(), scheduleID)
}

// DeviceCommand tells a running engine that a device record changed.
//
// Example: playout/command/device/router-main
func (t Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/device/%s", t.Prefix(), deviceID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllScheduleCommands matches every schedule command.
//
// Pattern: playout/command/schedule/+
func (t Topics) AllScheduleCommands() string {
	return t.ScheduleCommand("+")
}

// AllDeviceCommands matches every device command.
//
// Pattern: playout/command/device/+
func (t Topics) AllDeviceCommands() string {
	return t.DeviceCommand("+")
}

// AllScheduleExecuted matches every execution event.
//
// Pattern: playout/event/schedule-executed/+
func (t Topics) AllScheduleExecuted() string {
	return t.ScheduleExecuted("+")
}

// AllTopics matches everything under the prefix.
//
// Pattern: playout/#
func (t Topics) AllTopics() string {
	return t.Prefix() + "/#"
}

// LastSegment returns the final level of topic, which is the schedule or
// device ID for every per-entity topic above.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
