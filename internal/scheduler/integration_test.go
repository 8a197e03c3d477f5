package scheduler

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-playout/internal/bridges"
	"github.com/nerrad567/gray-logic-playout/internal/device"
)

// lineDevice is a graphics engine stub that records every line and replies OK.
type lineDevice struct {
	ln    net.Listener
	mu    sync.Mutex
	lines []string
}

func newLineDevice(t *testing.T) *lineDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &lineDevice{ln: ln}
	t.Cleanup(func() { ln.Close() }) //nolint:errcheck // Test cleanup

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					d.mu.Lock()
					d.lines = append(d.lines, strings.TrimSpace(line))
					d.mu.Unlock()
					conn.Write([]byte("OK\r\n")) //nolint:errcheck // best effort reply
				}
			}(conn)
		}
	}()
	return d
}

func (d *lineDevice) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(d.ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr) //nolint:errcheck // listener port is numeric
	return host, port
}

func (d *lineDevice) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.lines...)
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() //nolint:errcheck // freeing the port is the point
	return port
}

func TestIntegration_OnceTakeOverTCP(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	fake := newLineDevice(t)
	host, port := fake.hostPort(t)
	gfx := graphicsDevice()
	gfx.Host, gfx.Port = host, port
	if err := device.NewSQLiteRepository(db.DB).Update(ctx, gfx); err != nil {
		t.Fatalf("Update(device) error = %v", err)
	}

	// run_at is stored at second precision, so aim past the next boundary.
	runAt := time.Now().Truncate(time.Second).Add(2 * time.Second)
	if err := store.CreateSchedule(ctx, onceTake("s1", 7, runAt)); err != nil {
		t.Fatalf("CreateSchedule() error = %v", err)
	}

	links := bridges.New(bridges.Options{
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
	})
	s := New(store, links, Options{Location: time.UTC})
	t.Cleanup(s.StopAll)

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.ActiveJobCount() != 1 {
		t.Fatalf("ActiveJobCount() = %d, want 1", s.ActiveJobCount())
	}

	waitFor(t, 5*time.Second, func() bool {
		logs, err := store.ListLogs(ctx, LogFilter{ScheduleID: "s1"})
		return err == nil && len(logs) == 1
	})

	logs, err := store.ListLogs(ctx, LogFilter{ScheduleID: "s1"})
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if logs[0].Command != "TAKE 7" || logs[0].Status != StatusSuccess {
		t.Errorf("log = %+v, want TAKE 7 success", logs[0])
	}
	if got := fake.Lines(); len(got) != 1 || got[0] != "TAKE 7" {
		t.Errorf("device received %v, want [TAKE 7]", got)
	}

	waitFor(t, time.Second, func() bool {
		sched, err := store.GetSchedule(ctx, "s1")
		return err == nil && !sched.Enabled && sched.LastRun != nil
	})
	if s.ActiveJobCount() != 0 {
		t.Error("once job still active after firing")
	}
}

func TestIntegration_UnreachableRouterIsLogged(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	rtr := routerDevice()
	rtr.Host, rtr.Port = "127.0.0.1", closedPort(t)
	if err := device.NewSQLiteRepository(db.DB).Update(ctx, rtr); err != nil {
		t.Fatalf("Update(device) error = %v", err)
	}
	if err := store.CreateSchedule(ctx, recurringRoute("r1", "0 * * * *", 3, 5)); err != nil {
		t.Fatalf("CreateSchedule() error = %v", err)
	}

	links := bridges.New(bridges.Options{ConnectTimeout: 500 * time.Millisecond})
	s := New(store, links, Options{Location: time.UTC})
	t.Cleanup(s.StopAll)

	result := s.RunNow(ctx, "r1")
	if result.Success {
		t.Fatal("RunNow() succeeded against a closed port")
	}

	logs, err := store.ListLogs(ctx, LogFilter{ScheduleID: "r1"})
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if logs[0].Status != StatusError || logs[0].Command != "ROUTE 3 5" {
		t.Errorf("log = %+v, want ROUTE 3 5 error", logs[0])
	}
	if logs[0].Response == "" {
		t.Error("error log has no response text")
	}

	sched, err := store.GetSchedule(ctx, "r1")
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if !sched.Enabled || sched.LastRun == nil || sched.NextRun == nil {
		t.Errorf("run state after failure = enabled %v last %v next %v", sched.Enabled, sched.LastRun, sched.NextRun)
	}
}
