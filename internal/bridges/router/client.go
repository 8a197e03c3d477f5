package router

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-playout/internal/devicelink"
)

// Options sets the routing addresses used for every route on a client.
// The zero value targets matrix 0, level 0 with OpcodeRoute.
type Options struct {
	Opcode byte
	Matrix byte
	Level  byte
}

// Client is a binary-framed link to one routing matrix.
type Client struct {
	*devicelink.Conn
	opts Options
}

var _ devicelink.Link = (*Client)(nil)

// NewClient creates a client for cfg. It does not connect.
func NewClient(cfg devicelink.Config, opts Options) *Client {
	if opts.Opcode == 0 {
		opts.Opcode = OpcodeRoute
	}
	return &Client{
		Conn: devicelink.NewConn(cfg, FrameFramer{}),
		opts: opts,
	}
}

// RouteCommand is the human-readable form of a route, as recorded in logs.
func RouteCommand(source, destination int) string {
	return fmt.Sprintf("ROUTE %d %d", source, destination)
}

// Route connects source to destination. Receipt of any frame before the
// command timeout is success. Link errors are reported in the Result.
func (c *Client) Route(ctx context.Context, source, destination int) devicelink.Result {
	cmd := RouteCommand(source, destination)

	payload, err := EncodeRoutePayload(RouteParams{
		Opcode:      c.opts.Opcode,
		Matrix:      c.opts.Matrix,
		Level:       c.opts.Level,
		Source:      source,
		Destination: destination,
	})
	if err != nil {
		return devicelink.Failure(cmd, err.Error())
	}

	resp, err := c.SendCommand(ctx, payload)
	if err != nil {
		return devicelink.Failure(cmd, err.Error())
	}

	if _, ok, decodeErr := DecodeFrame(resp); decodeErr != nil || !ok {
		c.Logger().Warn("router response failed validation",
			"device_id", c.Address().DeviceID,
			"frame", fmt.Sprintf("% X", resp),
			"checksum_ok", ok,
			"error", decodeErr,
		)
	}

	return devicelink.Result{
		Success:  true,
		Message:  fmt.Sprintf("Routed source %d to destination %d", source, destination),
		Command:  cmd,
		Response: fmt.Sprintf("% X", resp),
	}
}
