package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "playout-test",
		},
		QoS:         1,
		Reconnect:   config.MQTTReconnectConfig{MaxDelay: 5},
		TopicPrefix: "playout-test",
	}
}

// ─── Test Doubles ───────────────────────────────────────────────────

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeBroker struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]MessageHandler
	err      error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]MessageHandler)}
}

func (f *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{topic, payload, qos, retained})
	return nil
}

func (f *fakeBroker) Subscribe(topic string, _ byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.handlers[topic] = handler
	return nil
}

// deliver routes a message to the handler whose pattern matches topic.
func (f *fakeBroker) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	f.mu.Lock()
	var handler MessageHandler
	for pattern, h := range f.handlers {
		if matches(pattern, topic) {
			handler = h
		}
	}
	f.mu.Unlock()

	if handler == nil {
		t.Fatalf("no subscription matches %q", topic)
	}
	return handler(topic, []byte(payload))
}

func matches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	s := strings.Split(topic, "/")
	if len(p) != len(s) {
		return false
	}
	for i := range p {
		if p[i] != "+" && p[i] != s[i] {
			return false
		}
	}
	return true
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// ─── Topics ─────────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("studio/")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SystemStatus", topics.SystemStatus(), "studio/system/status"},
		{"ScheduleExecuted", topics.ScheduleExecuted("router-main"), "studio/event/schedule-executed/router-main"},
		{"LinkState", topics.LinkState("cg-a"), "studio/state/link/cg-a"},
		{"ScheduleCommand", topics.ScheduleCommand("s1"), "studio/command/schedule/s1"},
		{"DeviceCommand", topics.DeviceCommand("d1"), "studio/command/device/d1"},
		{"AllScheduleCommands", topics.AllScheduleCommands(), "studio/command/schedule/+"},
		{"AllDeviceCommands", topics.AllDeviceCommands(), "studio/command/device/+"},
		{"AllScheduleExecuted", topics.AllScheduleExecuted(), "studio/event/schedule-executed/+"},
		{"AllTopics", topics.AllTopics(), "studio/#"},
		{"zero value prefix", Topics{}.SystemStatus(), "playout/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestLastSegment(t *testing.T) {
	tests := map[string]string{
		"playout/command/schedule/s1": "s1",
		"playout/command/schedule/":   "",
		"bare":                        "bare",
	}
	for topic, want := range tests {
		if got := LastSegment(topic); got != want {
			t.Errorf("LastSegment(%q) = %q, want %q", topic, got, want)
		}
	}
}

// ─── Options ────────────────────────────────────────────────────────

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "engine", Password: "secret"}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)
	configureLWT(opts, NewTopics(cfg.TopicPrefix), cfg.Broker.ClientID)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [ssl://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "playout-test" || opts.Username != "engine" {
		t.Errorf("ClientID/Username = %q/%q", opts.ClientID, opts.Username)
	}
	if !opts.AutoReconnect || opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("AutoReconnect = %v, MaxReconnectInterval = %v", opts.AutoReconnect, opts.MaxReconnectInterval)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set with broker.tls")
	}

	if !opts.WillEnabled || !opts.WillRetained || opts.WillTopic != "playout-test/system/status" {
		t.Errorf("will = enabled %v retained %v topic %q", opts.WillEnabled, opts.WillRetained, opts.WillTopic)
	}
	var will SystemStatus
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if will.Status != StatusOffline || will.Reason != "unexpected_disconnect" || will.ClientID != "playout-test" {
		t.Errorf("will payload = %+v", will)
	}
}

func TestStatusPayload(t *testing.T) {
	var s SystemStatus
	if err := json.Unmarshal(statusPayload(StatusOnline, "engine-1", ""), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Status != StatusOnline || s.ClientID != "engine-1" || s.Reason != "" {
		t.Errorf("statusPayload() = %+v", s)
	}
	if _, err := time.Parse(time.RFC3339, s.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339", s.Timestamp)
	}
}

// ─── Client without broker ──────────────────────────────────────────

func TestClientDisconnected(t *testing.T) {
	c := &Client{}

	if c.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"oversized", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"not connected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe not connected", c.Subscribe("t", 1, func(string, []byte) error { return nil }), ErrNotConnected},
		{"unsubscribe empty", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe not connected", c.Unsubscribe("t"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}
}

func TestDispatchRecoversAndLogs(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad") }, "t", nil)
	c.dispatch(func(string, []byte) error { return nil }, "t", nil)

	if len(logger.errors) != 1 || len(logger.warns) != 1 {
		t.Errorf("errors = %v, warns = %v; want one of each", logger.errors, logger.warns)
	}
}

// ─── Events ─────────────────────────────────────────────────────────

func TestPublishScheduleExecuted(t *testing.T) {
	broker := newFakeBroker()
	p := NewEventPublisher(broker, NewTopics("playout"), 1)

	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	err := p.PublishScheduleExecuted(ScheduleExecutedEvent{
		LogID:       "log-1",
		ScheduleID:  "s1",
		DeviceID:    "router-main",
		CommandKind: "route",
		Command:     "ROUTE 3 5",
		Status:      "success",
		Response:    "Routed source 3 to destination 5",
		Trigger:     "scheduled",
		DurationMS:  12,
		ExecutedAt:  at,
	})
	if err != nil {
		t.Fatalf("PublishScheduleExecuted() error = %v", err)
	}

	if len(broker.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(broker.messages))
	}
	msg := broker.messages[0]
	if msg.topic != "playout/event/schedule-executed/router-main" || msg.retained || msg.qos != 1 {
		t.Errorf("message = topic %q retained %v qos %d", msg.topic, msg.retained, msg.qos)
	}

	var got map[string]any
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got["command"] != "ROUTE 3 5" || got["status"] != "success" || got["executed_at"] != "2026-03-01T12:05:00Z" {
		t.Errorf("payload = %v", got)
	}

	if err := p.PublishScheduleExecuted(ScheduleExecutedEvent{}); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("event without device error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishLinkState(t *testing.T) {
	broker := newFakeBroker()
	p := NewEventPublisher(broker, NewTopics("playout"), 0)

	if err := p.PublishLinkState(LinkStateEvent{DeviceID: "cg-a", Kind: "graphics", Address: "10.0.0.20:5250", State: "connected"}); err != nil {
		t.Fatalf("PublishLinkState() error = %v", err)
	}

	msg := broker.messages[0]
	if msg.topic != "playout/state/link/cg-a" || !msg.retained {
		t.Errorf("message = topic %q retained %v", msg.topic, msg.retained)
	}
	var got LinkStateEvent
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.State != "connected" || got.Timestamp.IsZero() {
		t.Errorf("payload = %+v", got)
	}

	broker.err = ErrNotConnected
	if err := p.PublishLinkState(LinkStateEvent{DeviceID: "cg-a"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishLinkState() error = %v, want ErrNotConnected", err)
	}
}

// ─── Commands ───────────────────────────────────────────────────────

func TestParseScheduleCommand(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    ScheduleCommand
		wantErr bool
	}{
		{"run", "playout/command/schedule/s1", `{"action":"run"}`, ScheduleCommand{"s1", ActionRun}, false},
		{"reload", "playout/command/schedule/s2", `{"action":"reload"}`, ScheduleCommand{"s2", ActionReload}, false},
		{"payload id ignored", "playout/command/schedule/s3", `{"action":"cancel","ScheduleID":"other"}`, ScheduleCommand{"s3", ActionCancel}, false},
		{"unknown action", "playout/command/schedule/s1", `{"action":"explode"}`, ScheduleCommand{}, true},
		{"missing id", "playout/command/schedule/", `{"action":"run"}`, ScheduleCommand{}, true},
		{"not json", "playout/command/schedule/s1", `run`, ScheduleCommand{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScheduleCommand(tt.topic, []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScheduleCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("error = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseScheduleCommand() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseDeviceCommand(t *testing.T) {
	got, err := ParseDeviceCommand("playout/command/device/router-main", []byte(`{"action":"removed"}`))
	if err != nil {
		t.Fatalf("ParseDeviceCommand() error = %v", err)
	}
	if got.DeviceID != "router-main" || got.Action != DeviceRemoved {
		t.Errorf("ParseDeviceCommand() = %+v", got)
	}

	if _, err := ParseDeviceCommand("playout/command/device/x", []byte(`{"action":"run"}`)); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("ParseDeviceCommand(run) error = %v, want ErrInvalidCommand", err)
	}
}

func TestSubscribeCommandsRoundTrip(t *testing.T) {
	broker := newFakeBroker()
	topics := NewTopics("playout")

	var (
		schedules []ScheduleCommand
		devices   []DeviceCommand
	)
	err := SubscribeCommands(broker, topics, 1, CommandHandlers{
		Schedule: func(cmd ScheduleCommand) error {
			schedules = append(schedules, cmd)
			return nil
		},
		Device: func(cmd DeviceCommand) error {
			devices = append(devices, cmd)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("SubscribeCommands() error = %v", err)
	}
	if len(broker.handlers) != 2 {
		t.Fatalf("subscribed to %d topics, want 2", len(broker.handlers))
	}

	// The Notifier's output is exactly what the subscriptions accept.
	n := NewNotifier(broker, topics, 1)
	if err := n.Schedule("s1", ActionEnable); err != nil {
		t.Fatalf("Notifier.Schedule() error = %v", err)
	}
	if err := n.Device("router-main", DeviceUpdated); err != nil {
		t.Fatalf("Notifier.Device() error = %v", err)
	}
	for _, msg := range broker.messages {
		if err := broker.deliver(t, msg.topic, string(msg.payload)); err != nil {
			t.Errorf("deliver(%s) error = %v", msg.topic, err)
		}
	}

	if len(schedules) != 1 || schedules[0] != (ScheduleCommand{"s1", ActionEnable}) {
		t.Errorf("schedule commands = %+v", schedules)
	}
	if len(devices) != 1 || devices[0] != (DeviceCommand{"router-main", DeviceUpdated}) {
		t.Errorf("device commands = %+v", devices)
	}

	if err := broker.deliver(t, "playout/command/schedule/s1", `{"action":"nope"}`); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("invalid command error = %v, want ErrInvalidCommand", err)
	}
}

func TestSubscribeCommandsSkipsNilHandlers(t *testing.T) {
	broker := newFakeBroker()
	err := SubscribeCommands(broker, NewTopics("playout"), 1, CommandHandlers{
		Device: func(DeviceCommand) error { return nil },
	})
	if err != nil {
		t.Fatalf("SubscribeCommands() error = %v", err)
	}
	if _, ok := broker.handlers["playout/command/device/+"]; !ok || len(broker.handlers) != 1 {
		t.Errorf("handlers = %v, want device commands only", broker.handlers)
	}

	broker.err = ErrNotConnected
	err = SubscribeCommands(broker, NewTopics("playout"), 1, CommandHandlers{
		Schedule: func(ScheduleCommand) error { return nil },
	})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeCommands() error = %v, want ErrNotConnected", err)
	}
}
