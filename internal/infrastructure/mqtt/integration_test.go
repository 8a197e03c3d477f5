//go:build integration

package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// Integration tests against a real broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectTest(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client := connectTest(t, "playout-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	connectTest(t, "playout-int-status")
	observer := connectTest(t, "playout-int-status-observer")

	received := make(chan SystemStatus, 4)
	err := observer.Subscribe(observer.Topics().SystemStatus(), 1, func(_ string, payload []byte) error {
		var s SystemStatus
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		received <- s
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case s := <-received:
		if s.Status != StatusOnline {
			t.Errorf("retained status = %q, want online", s.Status)
		}
	case <-time.After(5 * time.Second):
		t.Error("no retained status received")
	}
}

func TestIntegration_CommandRoundTrip(t *testing.T) {
	engine := connectTest(t, "playout-int-engine")
	cli := connectTest(t, "playout-int-cli")

	got := make(chan ScheduleCommand, 1)
	err := SubscribeCommands(engine, engine.Topics(), 1, CommandHandlers{
		Schedule: func(cmd ScheduleCommand) error {
			got <- cmd
			return nil
		},
	})
	if err != nil {
		t.Fatalf("SubscribeCommands() error = %v", err)
	}
	if engine.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", engine.SubscriptionCount())
	}

	time.Sleep(100 * time.Millisecond)

	if err := NewNotifier(cli, cli.Topics(), 1).Schedule("s1", ActionReload); err != nil {
		t.Fatalf("Notifier.Schedule() error = %v", err)
	}

	select {
	case cmd := <-got:
		if cmd.ScheduleID != "s1" || cmd.Action != ActionReload {
			t.Errorf("received %+v", cmd)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for command")
	}

	if err := engine.Unsubscribe(engine.Topics().AllScheduleCommands()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if engine.HasSubscription(engine.Topics().AllScheduleCommands()) {
		t.Error("subscription still tracked after Unsubscribe()")
	}
}
