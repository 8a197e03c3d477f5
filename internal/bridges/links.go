// Package bridges connects the scheduler to physical devices.
//
// Links owns one connection pool per protocol family and dispatches take
// and route commands to the right one by device kind.
package bridges

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-playout/internal/bridges/graphics"
	"github.com/nerrad567/gray-logic-playout/internal/bridges/router"
	"github.com/nerrad567/gray-logic-playout/internal/device"
	"github.com/nerrad567/gray-logic-playout/internal/devicelink"
)

// Options configures every link created by Links.
type Options struct {
	ConnectTimeout    time.Duration
	CommandTimeout    time.Duration
	ReconnectInterval time.Duration

	// Router sets matrix and level for every routing command.
	Router router.Options

	Logger devicelink.Logger
}

// StateListener receives link state transitions for any device.
type StateListener func(kind device.Kind, addr devicelink.Address, state devicelink.State)

// Links dispatches commands to per-device links.
//
// Thread Safety: all methods are safe for concurrent use.
type Links struct {
	opts     Options
	logger   devicelink.Logger
	graphics *devicelink.Pool[*graphics.Client]
	routers  *devicelink.Pool[*router.Client]

	listenerMu sync.RWMutex
	listener   StateListener
}

// New creates Links with empty pools. No sockets are opened.
func New(opts Options) *Links {
	l := &Links{opts: opts, logger: opts.Logger}
	if l.logger == nil {
		l.logger = nopLogger{}
	}
	l.graphics = devicelink.NewPool(l.newGraphicsClient, l.logger)
	l.routers = devicelink.NewPool(l.newRouterClient, l.logger)
	return l
}

// SetStateListener registers the callback for link state transitions.
// Only links created after the call report to it.
func (l *Links) SetStateListener(listener StateListener) {
	l.listenerMu.Lock()
	l.listener = listener
	l.listenerMu.Unlock()
}

func (l *Links) linkConfig(addr devicelink.Address) devicelink.Config {
	return devicelink.Config{
		Address:           addr,
		ConnectTimeout:    l.opts.ConnectTimeout,
		CommandTimeout:    l.opts.CommandTimeout,
		ReconnectInterval: l.opts.ReconnectInterval,
	}
}

func (l *Links) newGraphicsClient(addr devicelink.Address) *graphics.Client {
	c := graphics.NewClient(l.linkConfig(addr))
	c.SetLogger(l.logger)
	c.SetOnStateChange(l.stateForwarder(device.KindGraphics))
	return c
}

func (l *Links) newRouterClient(addr devicelink.Address) *router.Client {
	c := router.NewClient(l.linkConfig(addr), l.opts.Router)
	c.SetLogger(l.logger)
	c.SetOnStateChange(l.stateForwarder(device.KindRouter))
	return c
}

func (l *Links) stateForwarder(kind device.Kind) func(devicelink.Address, devicelink.State) {
	return func(addr devicelink.Address, state devicelink.State) {
		l.listenerMu.RLock()
		listener := l.listener
		l.listenerMu.RUnlock()
		if listener != nil {
			listener(kind, addr, state)
		}
	}
}

// Take sends TAKE <takeID> to the graphics device at addr.
func (l *Links) Take(ctx context.Context, addr devicelink.Address, takeID int) devicelink.Result {
	return l.graphics.Get(addr).Take(ctx, takeID)
}

// Route connects source to destination on the router at addr.
func (l *Links) Route(ctx context.Context, addr devicelink.Address, source, destination int) devicelink.Result {
	return l.routers.Get(addr).Route(ctx, source, destination)
}

// TestConnection forces a connect to d without sending a command.
func (l *Links) TestConnection(ctx context.Context, d *device.Device) devicelink.Result {
	switch d.Kind {
	case device.KindGraphics:
		return l.graphics.TestConnection(ctx, d.Address())
	case device.KindRouter:
		return l.routers.TestConnection(ctx, d.Address())
	default:
		return devicelink.Failure("", fmt.Sprintf("Unsupported device kind %q", d.Kind))
	}
}

// Status reports whether d currently has a connected link. It never dials.
func (l *Links) Status(d *device.Device) bool {
	switch d.Kind {
	case device.KindGraphics:
		return l.graphics.Status(d.ID)
	case device.KindRouter:
		return l.routers.Status(d.ID)
	default:
		return false
	}
}

// Disconnect tears down deviceID's link in both pools.
func (l *Links) Disconnect(deviceID string) {
	l.graphics.Disconnect(deviceID)
	l.routers.Disconnect(deviceID)
}

// DisconnectAll tears down every link in both pools.
func (l *Links) DisconnectAll() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.graphics.DisconnectAll()
	}()
	go func() {
		defer wg.Done()
		l.routers.DisconnectAll()
	}()
	wg.Wait()
}

// Stats returns statistics for every live link, keyed by device ID.
func (l *Links) Stats() map[string]devicelink.Stats {
	out := l.graphics.Stats()
	for id, s := range l.routers.Stats() {
		out[id] = s
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
