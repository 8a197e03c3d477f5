package devicelink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default link timings.
const (
	// DefaultConnectTimeout bounds a single dial attempt.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultCommandTimeout bounds the wait for a command's response.
	DefaultCommandTimeout = 5 * time.Second

	// DefaultReconnectInterval is the fixed delay before each reconnect attempt.
	DefaultReconnectInterval = 5 * time.Second

	// readBufferSize is the size of a single socket read.
	readBufferSize = 512

	// maxBufferedBytes caps unterminated inbound data. A device that streams
	// garbage without a frame boundary is treated as a lost connection.
	maxBufferedBytes = 64 * 1024
)

// Framer adapts Conn to one wire protocol.
type Framer interface {
	// Encode wraps an outbound command in the protocol's framing.
	Encode(cmd []byte) []byte

	// Split extracts every complete frame from buf in arrival order and
	// returns the bytes that do not yet form a complete frame.
	// Returned frames must not alias buf.
	Split(buf []byte) (frames [][]byte, rest []byte)
}

// Config holds connection parameters for one link.
type Config struct {
	Address Address

	// ConnectTimeout bounds each dial. Default: 5 seconds.
	ConnectTimeout time.Duration

	// CommandTimeout bounds the wait for a response. Default: 5 seconds.
	CommandTimeout time.Duration

	// ReconnectInterval is the delay between reconnect attempts after the
	// socket is lost. Default: 5 seconds.
	ReconnectInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	return c
}

// response resolves the pending slot.
type response struct {
	data []byte
	err  error
}

// Conn is a single persistent socket to one device.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - SendCommand calls are serialised; a second caller waits until the
//     first has its response, times out, or fails.
type Conn struct {
	cfg    Config
	framer Framer

	// connectMu serialises dial attempts (explicit, implicit and reconnect).
	connectMu sync.Mutex

	// sendSlot has capacity 1 and is held for the lifetime of one command.
	sendSlot chan struct{}

	mu             sync.Mutex
	state          State
	conn           net.Conn
	gen            uint64 // bumped whenever the current socket is replaced or abandoned
	pending        chan response
	reconnectTimer *time.Timer
	stopped        bool // set by Disconnect; suppresses reconnects

	wg sync.WaitGroup // read loops

	hooksMu       sync.RWMutex
	logger        Logger
	onStateChange func(Address, State)

	commandsTx      atomic.Uint64
	responsesRx     atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // unix nanoseconds
}

// Ensure Conn implements Link.
var _ Link = (*Conn)(nil)

// NewConn creates a link in the Disconnected state. No socket is opened
// until Connect or the first SendCommand.
func NewConn(cfg Config, framer Framer) *Conn {
	return &Conn{
		cfg:      cfg.withDefaults(),
		framer:   framer,
		sendSlot: make(chan struct{}, 1),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for this link.
func (c *Conn) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.hooksMu.Lock()
	c.logger = logger
	c.hooksMu.Unlock()
}

// Logger returns the logger set by SetLogger.
func (c *Conn) Logger() Logger {
	return c.log()
}

// SetOnStateChange registers a callback invoked after every state transition.
// The callback runs on the goroutine that caused the transition and must not block.
func (c *Conn) SetOnStateChange(callback func(Address, State)) {
	c.hooksMu.Lock()
	c.onStateChange = callback
	c.hooksMu.Unlock()
}

// Address returns the device address this link dials.
func (c *Conn) Address() Address {
	return c.cfg.Address
}

// Connect opens the socket if it is not already open.
//
// Returns:
//   - error: wraps ErrConnection on refusal, socket error, or when the
//     dial exceeds ConnectTimeout
func (c *Conn) Connect(ctx context.Context) error {
	return c.dial(ctx, true)
}

// dial performs one connect attempt. When reopen is false (reconnect timer)
// the attempt is abandoned if the link was explicitly disconnected.
func (c *Conn) dial(ctx context.Context, reopen bool) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	addr := c.cfg.Address.HostPort()

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if reopen {
		c.stopped = false
	} else if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConnection, ErrLinkClosed)
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	nc, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		c.setDisconnected()
		c.errorsTotal.Add(1)
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: connect to %s timed out after %v", ErrConnection, addr, c.cfg.ConnectTimeout)
		}
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, addr, err)
	}

	c.mu.Lock()
	if c.stopped {
		// Disconnect won the race while we were dialling.
		c.mu.Unlock()
		nc.Close() //nolint:errcheck // abandoning a socket nobody will use
		c.setDisconnected()
		return fmt.Errorf("%w: %w", ErrConnection, ErrLinkClosed)
	}
	c.gen++
	gen := c.gen
	c.conn = nc
	c.state = StateConnected
	c.wg.Add(1)
	c.mu.Unlock()

	c.touch()
	go c.readLoop(nc, gen)

	c.log().Info("device link connected", "device_id", c.cfg.Address.DeviceID, "address", addr)
	c.notifyState(StateConnected)
	return nil
}

func (c *Conn) setDisconnected() {
	c.mu.Lock()
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()
	if changed {
		c.notifyState(StateDisconnected)
	}
}

// readLoop accumulates inbound bytes and hands complete frames to deliver.
func (c *Conn) readLoop(nc net.Conn, gen uint64) {
	defer c.wg.Done()

	chunk := make([]byte, readBufferSize)
	var buf []byte

	for {
		n, err := nc.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			frames, rest := c.framer.Split(buf)
			buf = append(buf[:0:0], rest...)

			for _, frame := range frames {
				c.deliver(gen, frame)
			}

			if len(buf) > maxBufferedBytes {
				c.lose(gen, fmt.Errorf("%w: %d bytes without a frame boundary", ErrFrameOverflow, len(buf)))
				return
			}
		}
		if err != nil {
			c.lose(gen, err)
			return
		}
	}
}

// deliver resolves the pending command with frame, or drops it if nothing is waiting.
func (c *Conn) deliver(gen uint64, frame []byte) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	ch := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.responsesRx.Add(1)
	c.touch()

	if ch == nil {
		c.log().Debug("discarding unsolicited frame",
			"device_id", c.cfg.Address.DeviceID,
			"bytes", len(frame),
		)
		return
	}
	ch <- response{data: frame}
}

// lose tears down the socket identified by gen after a read or write failure,
// fails any outstanding command, and arms the reconnect timer.
func (c *Conn) lose(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		// Already replaced or explicitly disconnected.
		c.mu.Unlock()
		return
	}
	c.gen++
	nc := c.conn
	c.conn = nil
	c.state = StateDisconnected
	ch := c.pending
	c.pending = nil
	if !c.stopped {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	if nc != nil {
		nc.Close() //nolint:errcheck // socket is already broken
	}
	if ch != nil {
		ch <- response{err: fmt.Errorf("%w: connection lost: %w", ErrConnection, cause)}
	}

	c.errorsTotal.Add(1)
	c.log().Warn("device link lost",
		"device_id", c.cfg.Address.DeviceID,
		"address", c.cfg.Address.HostPort(),
		"error", cause,
		"retry_in", c.cfg.ReconnectInterval.String(),
	)
	c.notifyState(StateDisconnected)
}

// scheduleReconnectLocked arms the reconnect timer unless one is already pending.
// Caller must hold c.mu.
func (c *Conn) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectInterval, c.reconnect)
}

// reconnect runs on the reconnect timer.
func (c *Conn) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.stopped || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.dial(context.Background(), false); err != nil {
		if errors.Is(err, ErrLinkClosed) {
			return
		}
		c.log().Debug("device link reconnect failed",
			"device_id", c.cfg.Address.DeviceID,
			"error", err,
		)
		c.mu.Lock()
		if !c.stopped && c.state == StateDisconnected {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return
	}

	c.reconnectsTotal.Add(1)
	c.log().Info("device link reconnected",
		"device_id", c.cfg.Address.DeviceID,
		"total_reconnects", c.reconnectsTotal.Load(),
	)
}

// SendCommand writes one command and waits for the next complete frame.
//
// The link connects implicitly if needed. Commands from concurrent callers
// queue; the wait for a turn is bounded by ctx.
//
// Returns:
//   - []byte: the response frame as received (framing intact)
//   - error: wraps ErrConnection or ErrTimeout
func (c *Conn) SendCommand(ctx context.Context, cmd []byte) ([]byte, error) {
	select {
	case c.sendSlot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for link: %w", ErrTimeout, ctx.Err())
	}
	defer func() { <-c.sendSlot }()

	if !c.IsConnected() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	addr := c.cfg.Address.HostPort()

	c.mu.Lock()
	nc := c.conn
	gen := c.gen
	if nc == nil || c.state != StateConnected {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrConnection, ErrNotConnected)
	}
	ch := make(chan response, 1)
	c.pending = ch
	c.mu.Unlock()

	frame := c.framer.Encode(cmd)
	if err := nc.SetWriteDeadline(time.Now().Add(c.cfg.CommandTimeout)); err != nil {
		c.clearPending(ch)
		c.lose(gen, err)
		return nil, fmt.Errorf("%w: set write deadline: %w", ErrConnection, err)
	}
	if _, err := nc.Write(frame); err != nil {
		c.clearPending(ch)
		c.lose(gen, err)
		return nil, fmt.Errorf("%w: write to %s: %w", ErrConnection, addr, err)
	}
	c.commandsTx.Add(1)
	c.touch()

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-timer.C:
		c.clearPending(ch)
		c.errorsTotal.Add(1)
		return nil, fmt.Errorf("%w: no response from %s within %v", ErrTimeout, addr, c.cfg.CommandTimeout)
	case <-ctx.Done():
		c.clearPending(ch)
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// clearPending empties the pending slot if it still holds ch.
func (c *Conn) clearPending(ch chan response) {
	c.mu.Lock()
	if c.pending == ch {
		c.pending = nil
	}
	c.mu.Unlock()
}

// Disconnect closes the socket, cancels any pending reconnect, and fails an
// outstanding command with ErrConnection. Safe to call multiple times.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	c.stopped = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	nc := c.conn
	c.conn = nil
	c.gen++
	wasDisconnected := c.state == StateDisconnected
	c.state = StateDisconnected
	ch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if ch != nil {
		ch <- response{err: fmt.Errorf("%w: %w", ErrConnection, ErrLinkClosed)}
	}
	if nc != nil {
		nc.Close() //nolint:errcheck // best-effort close unblocks the read loop
	}
	c.wg.Wait()

	if !wasDisconnected {
		c.log().Info("device link disconnected", "device_id", c.cfg.Address.DeviceID)
		c.notifyState(StateDisconnected)
	}
	return nil
}

// IsConnected reports whether the socket is open. It never dials.
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns current operational statistics.
func (c *Conn) Stats() Stats {
	var last time.Time
	if ns := c.lastActivity.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		State:           c.State(),
		CommandsTx:      c.commandsTx.Load(),
		ResponsesRx:     c.responsesRx.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    last,
	}
}

func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Conn) log() Logger {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.logger
}

func (c *Conn) notifyState(s State) {
	c.hooksMu.RLock()
	callback := c.onStateChange
	c.hooksMu.RUnlock()

	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log().Error("state change callback panic", "device_id", c.cfg.Address.DeviceID, "panic", r)
		}
	}()
	callback(c.cfg.Address, s)
}
