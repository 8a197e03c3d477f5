package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScheduleExecutedEvent is published after every command execution,
// scheduled or manual, once its log entry has been written.
type ScheduleExecutedEvent struct {
	LogID       string    `json:"log_id"`
	ScheduleID  string    `json:"schedule_id,omitempty"`
	DeviceID    string    `json:"device_id"`
	CommandKind string    `json:"command_kind"`
	Command     string    `json:"command"`
	Status      string    `json:"status"`
	Response    string    `json:"response"`
	Trigger     string    `json:"trigger"`
	DurationMS  int64     `json:"duration_ms"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// LinkStateEvent is the retained link state of one device.
type LinkStateEvent struct {
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"`
	Address   string    `json:"address"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher publishes engine events.
type EventPublisher struct {
	pub    Publisher
	topics Topics
	qos    byte
}

// NewEventPublisher creates a publisher that sends on topics at qos.
func NewEventPublisher(pub Publisher, topics Topics, qos byte) *EventPublisher {
	return &EventPublisher{pub: pub, topics: topics, qos: qos}
}

// PublishScheduleExecuted sends ev on the device's execution topic.
func (p *EventPublisher) PublishScheduleExecuted(ev ScheduleExecutedEvent) error {
	if ev.DeviceID == "" {
		return fmt.Errorf("%w: execution event without device_id", ErrPublishFailed)
	}
	return p.publishJSON(p.topics.ScheduleExecuted(ev.DeviceID), ev, false)
}

// PublishLinkState sends ev, retained, on the device's link state topic.
func (p *EventPublisher) PublishLinkState(ev LinkStateEvent) error {
	if ev.DeviceID == "" {
		return fmt.Errorf("%w: link state without device_id", ErrPublishFailed)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return p.publishJSON(p.topics.LinkState(ev.DeviceID), ev, true)
}

func (p *EventPublisher) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, topic, err)
	}
	return p.pub.Publish(topic, payload, p.qos, retained)
}
