package bridges

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-playout/internal/bridges/router"
	"github.com/nerrad567/gray-logic-playout/internal/device"
	"github.com/nerrad567/gray-logic-playout/internal/devicelink"
)

// ─── Fake Devices ───────────────────────────────────────────────────

// fakeDevice accepts connections and answers each request with handle.
type fakeDevice struct {
	listener net.Listener

	mu       sync.Mutex
	conns    []net.Conn
	accepted int
}

func newFakeDevice(t *testing.T, serve func(net.Conn)) *fakeDevice {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	f := &fakeDevice{listener: l}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			f.mu.Lock()
			f.conns = append(f.conns, conn)
			f.accepted++
			f.mu.Unlock()
			go serve(conn)
		}
	}()
	t.Cleanup(func() {
		l.Close()
		f.mu.Lock()
		for _, c := range f.conns {
			c.Close()
		}
		f.mu.Unlock()
	})
	return f
}

func (f *fakeDevice) device(id string, kind device.Kind) *device.Device {
	host, portStr, _ := net.SplitHostPort(f.listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return &device.Device{ID: id, Name: id, Kind: kind, Host: host, Port: port, Enabled: true}
}

func (f *fakeDevice) Accepted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

func serveLines(reply string) func(net.Conn) {
	return func(conn net.Conn) {
		r := bufio.NewReader(conn)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
			conn.Write([]byte(reply + "\r\n"))
		}
	}
}

func serveFrames(conn net.Conn) {
	ack := router.BuildFrame([]byte{0x03})
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if n > 0 && buf[n-1] == router.EOM2 {
			conn.Write(ack)
		}
	}
}

func testLinks() *Links {
	return New(Options{
		ConnectTimeout:    time.Second,
		CommandTimeout:    time.Second,
		ReconnectInterval: time.Hour,
	})
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestLinksTake(t *testing.T) {
	fake := newFakeDevice(t, serveLines("OK"))
	links := testLinks()
	defer links.DisconnectAll()

	d := fake.device("gfx-1", device.KindGraphics)
	result := links.Take(context.Background(), d.Address(), 7)

	if !result.Success {
		t.Fatalf("Take() failed: %s", result.Message)
	}
	if result.Command != "TAKE 7" {
		t.Errorf("Command = %q, want %q", result.Command, "TAKE 7")
	}
	if !links.Status(d) {
		t.Error("Status() = false after successful take")
	}
}

func TestLinksRoute(t *testing.T) {
	fake := newFakeDevice(t, serveFrames)
	links := testLinks()
	defer links.DisconnectAll()

	d := fake.device("rtr-1", device.KindRouter)
	result := links.Route(context.Background(), d.Address(), 3, 5)

	if !result.Success {
		t.Fatalf("Route() failed: %s", result.Message)
	}
	if result.Command != "ROUTE 3 5" {
		t.Errorf("Command = %q, want %q", result.Command, "ROUTE 3 5")
	}
}

func TestLinksReuseOneSocketPerDevice(t *testing.T) {
	fake := newFakeDevice(t, serveLines("OK"))
	links := testLinks()
	defer links.DisconnectAll()

	addr := fake.device("gfx-1", device.KindGraphics).Address()
	for i := range 3 {
		if r := links.Take(context.Background(), addr, i); !r.Success {
			t.Fatalf("Take(%d) failed: %s", i, r.Message)
		}
	}
	if got := fake.Accepted(); got != 1 {
		t.Errorf("device accepted %d connections, want 1", got)
	}
}

func TestLinksTestConnectionAndStatus(t *testing.T) {
	fake := newFakeDevice(t, serveLines("OK"))
	links := testLinks()
	defer links.DisconnectAll()

	d := fake.device("gfx-1", device.KindGraphics)

	if links.Status(d) {
		t.Error("Status() = true before any connection")
	}
	if fake.Accepted() != 0 {
		t.Error("Status() must not dial")
	}

	result := links.TestConnection(context.Background(), d)
	if !result.Success {
		t.Fatalf("TestConnection() failed: %s", result.Message)
	}
	if !strings.HasPrefix(result.Message, "Connected to ") {
		t.Errorf("Message = %q", result.Message)
	}
	if !links.Status(d) {
		t.Error("Status() = false after TestConnection")
	}

	bad := &device.Device{ID: "x", Kind: "mixer"}
	if r := links.TestConnection(context.Background(), bad); r.Success {
		t.Error("TestConnection() for unknown kind should fail")
	}
}

func TestLinksDisconnect(t *testing.T) {
	fake := newFakeDevice(t, serveLines("OK"))
	links := testLinks()
	defer links.DisconnectAll()

	d := fake.device("gfx-1", device.KindGraphics)
	links.Take(context.Background(), d.Address(), 1)

	links.Disconnect(d.ID)
	if links.Status(d) {
		t.Error("Status() = true after Disconnect")
	}
	if _, ok := links.Stats()[d.ID]; ok {
		t.Error("Stats() still lists a disconnected device")
	}

	// A fresh link is created on the next command.
	if r := links.Take(context.Background(), d.Address(), 2); !r.Success {
		t.Fatalf("Take() after Disconnect failed: %s", r.Message)
	}
	if got := fake.Accepted(); got != 2 {
		t.Errorf("accepted = %d, want 2", got)
	}
}

func TestLinksPoolsAreIndependent(t *testing.T) {
	gfx := newFakeDevice(t, serveLines("OK"))
	rtr := newFakeDevice(t, serveFrames)
	links := testLinks()

	// Same device ID in both families never shares an entry.
	g := gfx.device("shared", device.KindGraphics)
	r := rtr.device("shared", device.KindRouter)

	if res := links.Take(context.Background(), g.Address(), 1); !res.Success {
		t.Fatalf("Take() failed: %s", res.Message)
	}
	if res := links.Route(context.Background(), r.Address(), 1, 2); !res.Success {
		t.Fatalf("Route() failed: %s", res.Message)
	}

	links.DisconnectAll()
	if links.Status(g) || links.Status(r) {
		t.Error("links still connected after DisconnectAll")
	}
}

func TestLinksStateListener(t *testing.T) {
	fake := newFakeDevice(t, serveLines("OK"))
	links := testLinks()
	defer links.DisconnectAll()

	var mu sync.Mutex
	var states []devicelink.State
	links.SetStateListener(func(kind device.Kind, addr devicelink.Address, s devicelink.State) {
		if kind != device.KindGraphics || addr.DeviceID != "gfx-1" {
			t.Errorf("listener got kind=%s device=%s", kind, addr.DeviceID)
		}
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	d := fake.device("gfx-1", device.KindGraphics)
	links.Take(context.Background(), d.Address(), 1)
	links.Disconnect(d.ID)

	mu.Lock()
	defer mu.Unlock()
	want := []devicelink.State{devicelink.StateConnecting, devicelink.StateConnected, devicelink.StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("states[%d] = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestLinksUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	links := testLinks()
	defer links.DisconnectAll()

	result := links.Route(context.Background(), devicelink.Address{
		DeviceID: "rtr-down", Host: "127.0.0.1", Port: addr.Port,
	}, 3, 5)
	if result.Success {
		t.Fatal("Route() to closed port succeeded")
	}
	if result.Command != "ROUTE 3 5" {
		t.Errorf("Command = %q, want %q", result.Command, "ROUTE 3 5")
	}
	if result.Message == "" {
		t.Error("failure result has no message")
	}
}
