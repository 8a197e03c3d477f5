package devicelink

import (
	"context"
	"sync"
	"testing"
)

// ─── Mock Link ──────────────────────────────────────────────────────

type mockLink struct {
	mu            sync.Mutex
	addr          Address
	connected     bool
	connectErr    error
	connectCalls  int
	disconnectCnt int
}

func (m *mockLink) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockLink) SendCommand(context.Context, []byte) ([]byte, error) {
	return nil, nil
}

func (m *mockLink) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectCnt++
	m.connected = false
	return nil
}

func (m *mockLink) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockLink) Stats() Stats {
	if m.IsConnected() {
		return Stats{State: StateConnected}
	}
	return Stats{}
}

func newMockPool() (*Pool[*mockLink], *[]*mockLink) {
	var created []*mockLink
	pool := NewPool(func(addr Address) *mockLink {
		l := &mockLink{addr: addr}
		created = append(created, l)
		return l
	}, nil)
	return pool, &created
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestPoolGetReusesLink(t *testing.T) {
	pool, created := newMockPool()
	addr := Address{DeviceID: "sw-1", Host: "10.0.0.5", Port: 9000}

	first := pool.Get(addr)
	second := pool.Get(addr)

	if first != second {
		t.Error("Get() returned a different link for the same device")
	}
	if len(*created) != 1 {
		t.Errorf("factory called %d times, want 1", len(*created))
	}
	if first.connectCalls != 0 {
		t.Errorf("Get() connected eagerly (%d calls), want lazy", first.connectCalls)
	}
}

func TestPoolGetReplacesOnAddressChange(t *testing.T) {
	pool, created := newMockPool()

	old := pool.Get(Address{DeviceID: "sw-1", Host: "10.0.0.5", Port: 9000})
	replacement := pool.Get(Address{DeviceID: "sw-1", Host: "10.0.0.6", Port: 9000})

	if old == replacement {
		t.Fatal("Get() reused a link after the address changed")
	}
	if old.disconnectCnt != 1 {
		t.Errorf("old link disconnected %d times, want 1", old.disconnectCnt)
	}
	if len(*created) != 2 {
		t.Errorf("factory called %d times, want 2", len(*created))
	}
	if pool.Len() != 1 {
		t.Errorf("Len() = %d, want 1", pool.Len())
	}
}

func TestPoolStatusNeverConnects(t *testing.T) {
	pool, created := newMockPool()

	if pool.Status("missing") {
		t.Error("Status(missing) = true, want false")
	}
	if len(*created) != 0 {
		t.Error("Status() created a link")
	}

	link := pool.Get(Address{DeviceID: "gfx-1", Host: "10.0.0.7", Port: 5250})
	if pool.Status("gfx-1") {
		t.Error("Status() = true before connect")
	}
	if link.connectCalls != 0 {
		t.Error("Status() triggered a connect")
	}
}

func TestPoolTestConnection(t *testing.T) {
	pool, _ := newMockPool()
	addr := Address{DeviceID: "gfx-1", Host: "10.0.0.7", Port: 5250}

	result := pool.TestConnection(context.Background(), addr)
	if !result.Success {
		t.Errorf("TestConnection() success = false, message %q", result.Message)
	}
	if !pool.Status("gfx-1") {
		t.Error("Status() = false after successful TestConnection")
	}

	link, _ := pool.Lookup("gfx-1")
	link.Disconnect()
	link.connectErr = ErrConnection

	result = pool.TestConnection(context.Background(), addr)
	if result.Success {
		t.Error("TestConnection() success = true, want false on connect error")
	}
	if result.Message == "" {
		t.Error("TestConnection() failure message is empty")
	}
}

func TestPoolDisconnect(t *testing.T) {
	pool, _ := newMockPool()
	link := pool.Get(Address{DeviceID: "sw-1", Host: "10.0.0.5", Port: 9000})

	pool.Disconnect("sw-1")
	pool.Disconnect("sw-1")
	pool.Disconnect("never-registered")

	if link.disconnectCnt != 1 {
		t.Errorf("link disconnected %d times, want 1", link.disconnectCnt)
	}
	if _, ok := pool.Lookup("sw-1"); ok {
		t.Error("Lookup() found evicted link")
	}
}

func TestPoolDisconnectAll(t *testing.T) {
	pool, created := newMockPool()
	for _, id := range []string{"a", "b", "c"} {
		pool.Get(Address{DeviceID: id, Host: "10.0.0.1", Port: 9000})
	}

	if got := pool.DeviceIDs(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("DeviceIDs() = %v, want [a b c]", got)
	}

	pool.DisconnectAll()

	if pool.Len() != 0 {
		t.Errorf("Len() = %d after DisconnectAll, want 0", pool.Len())
	}
	for _, l := range *created {
		if l.disconnectCnt != 1 {
			t.Errorf("link %s disconnected %d times, want 1", l.addr.DeviceID, l.disconnectCnt)
		}
	}
}

func TestPoolStats(t *testing.T) {
	pool, _ := newMockPool()
	pool.Get(Address{DeviceID: "a", Host: "10.0.0.1", Port: 9000})
	pool.TestConnection(context.Background(), Address{DeviceID: "b", Host: "10.0.0.2", Port: 9000})

	stats := pool.Stats()
	if len(stats) != 2 {
		t.Fatalf("Stats() has %d entries, want 2", len(stats))
	}
	if stats["a"].State != StateDisconnected {
		t.Errorf("stats[a].State = %v, want disconnected", stats["a"].State)
	}
	if stats["b"].State != StateConnected {
		t.Errorf("stats[b].State = %v, want connected", stats["b"].State)
	}
}
