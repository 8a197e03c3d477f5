package devicelink

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Link is the capability every device protocol client provides.
type Link interface {
	Connect(ctx context.Context) error
	SendCommand(ctx context.Context, cmd []byte) ([]byte, error)
	Disconnect() error
	IsConnected() bool
	Stats() Stats
}

// Address identifies a device and where to reach it.
type Address struct {
	DeviceID string
	Host     string
	Port     int
}

// HostPort returns the dialable "host:port" form.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Result is the outcome of a device operation as reported to callers.
// Link failures never escape as errors past this point.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// Command is the literal command that was sent (or would have been).
	Command string `json:"command,omitempty"`

	// Response is the raw response as text, when one was received.
	Response string `json:"response,omitempty"`
}

// Failure builds an unsuccessful Result.
func Failure(command, message string) Result {
	return Result{Success: false, Message: message, Command: command}
}

// State is a link's connection state.
type State int32

// Link states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Stats holds operational counters for one link.
type Stats struct {
	State           State
	CommandsTx      uint64
	ResponsesRx     uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
}

// Logger is the logging interface used by links and pools.
// *logging.Logger and *slog.Logger both satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
