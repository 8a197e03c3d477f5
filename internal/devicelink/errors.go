package devicelink

import "errors"

// Link-layer errors. Use errors.Is to classify a failure.
var (
	// ErrConnection is returned when a socket cannot be opened, is refused,
	// or fails while a command is outstanding.
	ErrConnection = errors.New("devicelink: connection error")

	// ErrTimeout is returned when no response arrives within the command timeout.
	ErrTimeout = errors.New("devicelink: timed out")

	// ErrNotConnected is returned when a command is attempted on a link
	// without a live socket.
	ErrNotConnected = errors.New("devicelink: not connected")

	// ErrLinkClosed is returned to callers whose command or connect attempt
	// was cut short by an explicit Disconnect.
	ErrLinkClosed = errors.New("devicelink: link disconnected")

	// ErrFrameOverflow is returned when a device sends more unterminated
	// bytes than a single frame can plausibly hold.
	ErrFrameOverflow = errors.New("devicelink: inbound frame overflow")
)
