package graphics

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-playout/internal/devicelink"
)

// rejectPrefixes mark a response line as a device-side refusal.
var rejectPrefixes = []string{"ERR", "NAK"}

// Client is a line-protocol link to one graphics device.
type Client struct {
	*devicelink.Conn
}

var _ devicelink.Link = (*Client)(nil)

// NewClient creates a client for cfg. It does not connect.
func NewClient(cfg devicelink.Config) *Client {
	return &Client{Conn: devicelink.NewConn(cfg, LineFramer{})}
}

// SendLine sends one text command and returns the next response line.
// CRLF is appended if absent; the returned line has it stripped.
func (c *Client) SendLine(ctx context.Context, text string) (string, error) {
	resp, err := c.SendCommand(ctx, []byte(text))
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// TakeCommand formats the command that plays take id.
func TakeCommand(takeID int) string {
	return "TAKE " + strconv.Itoa(takeID)
}

// Take plays a pre-configured graphic. Link errors are reported in the
// Result, never returned.
func (c *Client) Take(ctx context.Context, takeID int) devicelink.Result {
	cmd := TakeCommand(takeID)

	resp, err := c.SendLine(ctx, cmd)
	if err != nil {
		return devicelink.Failure(cmd, err.Error())
	}

	result := devicelink.Result{Command: cmd, Response: resp}
	if isRejection(resp) {
		result.Message = fmt.Sprintf("Device rejected take %d: %s", takeID, resp)
		return result
	}

	result.Success = true
	result.Message = fmt.Sprintf("Take %d executed", takeID)
	if resp != "" {
		result.Message += ": " + resp
	}
	return result
}

func isRejection(resp string) bool {
	upper := strings.ToUpper(strings.TrimSpace(resp))
	for _, p := range rejectPrefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}
