package mqtt

import (
	"encoding/json"
	"fmt"
)

// ScheduleAction is what a schedule command asks the engine to do.
type ScheduleAction string

// Schedule actions.
const (
	ActionRun     ScheduleAction = "run"     // execute immediately
	ActionReload  ScheduleAction = "reload"  // rebuild the job from the store
	ActionCancel  ScheduleAction = "cancel"  // drop the job, leave the record
	ActionEnable  ScheduleAction = "enable"  // set enabled and schedule
	ActionDisable ScheduleAction = "disable" // cancel and clear enabled
)

// DeviceAction reports a change to a device record.
type DeviceAction string

// Device actions.
const (
	DeviceUpdated DeviceAction = "updated"
	DeviceRemoved DeviceAction = "removed"
)

// ScheduleCommand is received on Topics.ScheduleCommand.
type ScheduleCommand struct {
	ScheduleID string         `json:"-"`
	Action     ScheduleAction `json:"action"`
}

// DeviceCommand is received on Topics.DeviceCommand.
type DeviceCommand struct {
	DeviceID string       `json:"-"`
	Action   DeviceAction `json:"action"`
}

// ParseScheduleCommand decodes a schedule command. The ID comes from the topic.
func ParseScheduleCommand(topic string, payload []byte) (ScheduleCommand, error) {
	cmd := ScheduleCommand{ScheduleID: LastSegment(topic)}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	cmd.ScheduleID = LastSegment(topic)

	switch cmd.Action {
	case ActionRun, ActionReload, ActionCancel, ActionEnable, ActionDisable:
	default:
		return cmd, fmt.Errorf("%w: unknown schedule action %q", ErrInvalidCommand, cmd.Action)
	}
	if cmd.ScheduleID == "" || cmd.ScheduleID == "+" {
		return cmd, fmt.Errorf("%w: missing schedule id in %q", ErrInvalidCommand, topic)
	}
	return cmd, nil
}

// ParseDeviceCommand decodes a device command. The ID comes from the topic.
func ParseDeviceCommand(topic string, payload []byte) (DeviceCommand, error) {
	cmd := DeviceCommand{DeviceID: LastSegment(topic)}
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	cmd.DeviceID = LastSegment(topic)

	switch cmd.Action {
	case DeviceUpdated, DeviceRemoved:
	default:
		return cmd, fmt.Errorf("%w: unknown device action %q", ErrInvalidCommand, cmd.Action)
	}
	if cmd.DeviceID == "" || cmd.DeviceID == "+" {
		return cmd, fmt.Errorf("%w: missing device id in %q", ErrInvalidCommand, topic)
	}
	return cmd, nil
}

// CommandHandlers receive decoded commands. A nil handler skips that
// subscription.
type CommandHandlers struct {
	Schedule func(ScheduleCommand) error
	Device   func(DeviceCommand) error
}

// SubscribeCommands subscribes to both command families under topics.
func SubscribeCommands(sub Subscriber, topics Topics, qos byte, h CommandHandlers) error {
	if h.Schedule != nil {
		err := sub.Subscribe(topics.AllScheduleCommands(), qos, func(topic string, payload []byte) error {
			cmd, err := ParseScheduleCommand(topic, payload)
			if err != nil {
				return err
			}
			return h.Schedule(cmd)
		})
		if err != nil {
			return fmt.Errorf("subscribing to schedule commands: %w", err)
		}
	}

	if h.Device != nil {
		err := sub.Subscribe(topics.AllDeviceCommands(), qos, func(topic string, payload []byte) error {
			cmd, err := ParseDeviceCommand(topic, payload)
			if err != nil {
				return err
			}
			return h.Device(cmd)
		})
		if err != nil {
			return fmt.Errorf("subscribing to device commands: %w", err)
		}
	}
	return nil
}

// Notifier sends commands to a running engine. The command line uses it
// after editing the store.
type Notifier struct {
	pub    Publisher
	topics Topics
	qos    byte
}

// NewNotifier creates a Notifier publishing on topics at qos.
func NewNotifier(pub Publisher, topics Topics, qos byte) *Notifier {
	return &Notifier{pub: pub, topics: topics, qos: qos}
}

// Schedule publishes action for scheduleID.
func (n *Notifier) Schedule(scheduleID string, action ScheduleAction) error {
	payload, _ := json.Marshal(ScheduleCommand{Action: action}) //nolint:errcheck // string field
	return n.pub.Publish(n.topics.ScheduleCommand(scheduleID), payload, n.qos, false)
}

// Device publishes action for deviceID.
func (n *Notifier) Device(deviceID string, action DeviceAction) error {
	payload, _ := json.Marshal(DeviceCommand{Action: action}) //nolint:errcheck // string field
	return n.pub.Publish(n.topics.DeviceCommand(deviceID), payload, n.qos, false)
}
