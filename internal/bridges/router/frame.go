package router

import (
	"bytes"
	"errors"
	"fmt"
)

// Frame markers.
const (
	// SOM opens a frame. EOM shares its value.
	SOM byte = 0x10

	// EOM is the first end-of-message byte.
	EOM byte = 0x10

	// EOM2 follows EOM and marks a true end of message.
	EOM2 byte = 0x03

	// frameOverhead is SOM + checksum + EOM + EOM2.
	frameOverhead = 4
)

// Routing command layout.
const (
	// OpcodeRoute is the crosspoint-connect opcode.
	OpcodeRoute byte = 0x02

	// MaxAddress is the largest source or destination a 14-bit split can carry.
	MaxAddress = 0x3FFF

	routePayloadLen = 7
)

var (
	// ErrAddressRange is returned when a source or destination exceeds MaxAddress.
	ErrAddressRange = errors.New("router: address out of range")

	// ErrInvalidFrame is returned when bytes do not form a SOM..EOM2 frame.
	ErrInvalidFrame = errors.New("router: invalid frame")
)

// SplitMSBLSB splits a 14-bit value into two 7-bit groups.
func SplitMSBLSB(v int) (msb, lsb byte) {
	return byte((v >> 7) & 0x7F), byte(v & 0x7F)
}

// JoinMSBLSB reassembles a value split by SplitMSBLSB.
func JoinMSBLSB(msb, lsb byte) int {
	return int(msb&0x7F)<<7 | int(lsb&0x7F)
}

// Checksum returns the XOR of every payload byte.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// BuildFrame wraps payload as SOM | payload | checksum | EOM | EOM2.
func BuildFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+frameOverhead)
	frame = append(frame, SOM)
	frame = append(frame, payload...)
	return append(frame, Checksum(payload), EOM, EOM2)
}

// RouteParams addresses a crosspoint change.
type RouteParams struct {
	Opcode      byte
	Matrix      byte
	Level       byte
	Source      int
	Destination int
}

// EncodeRoutePayload builds the routing payload
// [opcode, matrix, level, destMSB, destLSB, srcMSB, srcLSB].
func EncodeRoutePayload(p RouteParams) ([]byte, error) {
	if p.Source < 0 || p.Source > MaxAddress {
		return nil, fmt.Errorf("%w: source %d not in 0..%d", ErrAddressRange, p.Source, MaxAddress)
	}
	if p.Destination < 0 || p.Destination > MaxAddress {
		return nil, fmt.Errorf("%w: destination %d not in 0..%d", ErrAddressRange, p.Destination, MaxAddress)
	}

	destMSB, destLSB := SplitMSBLSB(p.Destination)
	srcMSB, srcLSB := SplitMSBLSB(p.Source)

	payload := make([]byte, 0, routePayloadLen)
	return append(payload, p.Opcode, p.Matrix, p.Level, destMSB, destLSB, srcMSB, srcLSB), nil
}

// DecodeRoutePayload is the inverse of EncodeRoutePayload.
func DecodeRoutePayload(payload []byte) (RouteParams, error) {
	if len(payload) != routePayloadLen {
		return RouteParams{}, fmt.Errorf("%w: route payload is %d bytes, want %d", ErrInvalidFrame, len(payload), routePayloadLen)
	}
	return RouteParams{
		Opcode:      payload[0],
		Matrix:      payload[1],
		Level:       payload[2],
		Destination: JoinMSBLSB(payload[3], payload[4]),
		Source:      JoinMSBLSB(payload[5], payload[6]),
	}, nil
}

// DecodeFrame strips framing from a complete frame.
//
// Returns:
//   - payload: bytes between SOM and the checksum
//   - checksumOK: whether the trailing checksum matches the payload
//   - error: ErrInvalidFrame if markers are missing or the frame is too short
func DecodeFrame(frame []byte) (payload []byte, checksumOK bool, err error) {
	n := len(frame)
	if n < frameOverhead {
		return nil, false, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, n)
	}
	if frame[0] != SOM || frame[n-2] != EOM || frame[n-1] != EOM2 {
		return nil, false, fmt.Errorf("%w: bad markers % X", ErrInvalidFrame, frame)
	}
	payload = frame[1 : n-3]
	return payload, Checksum(payload) == frame[n-3], nil
}

// FrameFramer implements devicelink.Framer for SOM..EOM2 frames.
//
// Encode expects an unframed payload. Split emits whole frames including
// their markers.
type FrameFramer struct{}

// Encode frames payload.
func (FrameFramer) Encode(payload []byte) []byte {
	return BuildFrame(payload)
}

// Split scans buf for SOM followed by the first EOM, EOM2 pair and emits
// each such span. Bytes before a SOM are noise and are discarded.
func (FrameFramer) Split(buf []byte) (frames [][]byte, rest []byte) {
	for {
		start := bytes.IndexByte(buf, SOM)
		if start < 0 {
			return frames, nil
		}
		buf = buf[start:]

		end := bytes.Index(buf[1:], []byte{EOM, EOM2})
		if end < 0 {
			return frames, buf
		}
		end += 1 + 2 // offset of buf[1:] plus the two end markers

		frames = append(frames, append([]byte{}, buf[:end]...))
		buf = buf[end:]
	}
}
