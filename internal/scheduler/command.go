package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-playout/internal/bridges/router"
)

// TakePayload is the command payload of a take schedule.
// A bare JSON integer is accepted as shorthand for {"takeId": n}.
type TakePayload struct {
	TakeID *int `json:"takeId"`
}

// RoutePayload is the command payload of a route schedule.
type RoutePayload struct {
	Source      *int `json:"source"`
	Destination *int `json:"destination"`
}

// DecodeTake extracts the take id from a take payload.
func DecodeTake(raw json.RawMessage) (int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidCommand)
	}

	if trimmed[0] != '{' {
		var id *int
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return 0, fmt.Errorf("%w: take id: %w", ErrInvalidCommand, err)
		}
		if id == nil {
			return 0, fmt.Errorf("%w: missing takeId", ErrInvalidCommand)
		}
		return *id, nil
	}

	var p TakePayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if p.TakeID == nil {
		return 0, fmt.Errorf("%w: missing takeId", ErrInvalidCommand)
	}
	return *p.TakeID, nil
}

// DecodeRoute extracts source and destination from a route payload.
// Both must be within the router's 14-bit address range.
func DecodeRoute(raw json.RawMessage) (source, destination int, err error) {
	var p RoutePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	var missing []string
	if p.Source == nil {
		missing = append(missing, "source")
	}
	if p.Destination == nil {
		missing = append(missing, "destination")
	}
	if len(missing) > 0 {
		return 0, 0, fmt.Errorf("%w: missing %s", ErrInvalidCommand, strings.Join(missing, " and "))
	}

	for _, v := range []int{*p.Source, *p.Destination} {
		if v < 0 || v > router.MaxAddress {
			return 0, 0, fmt.Errorf("%w: address %d outside 0-%d", ErrInvalidCommand, v, router.MaxAddress)
		}
	}
	return *p.Source, *p.Destination, nil
}

// TakeJSON builds a take payload.
func TakeJSON(takeID int) json.RawMessage {
	b, _ := json.Marshal(TakePayload{TakeID: &takeID}) //nolint:errcheck // cannot fail
	return b
}

// RouteJSON builds a route payload.
func RouteJSON(source, destination int) json.RawMessage {
	b, _ := json.Marshal(RoutePayload{Source: &source, Destination: &destination}) //nolint:errcheck // cannot fail
	return b
}

// ValidatePayload checks that payload decodes for kind.
func ValidatePayload(kind CommandKind, payload json.RawMessage) error {
	switch kind {
	case CommandTake:
		_, err := DecodeTake(payload)
		return err
	case CommandRoute:
		_, _, err := DecodeRoute(payload)
		return err
	default:
		return fmt.Errorf("%w: unknown command kind %q", ErrInvalidCommand, kind)
	}
}

// fallbackCommand is logged when a payload cannot be turned into a command.
func fallbackCommand(kind CommandKind) string {
	if kind == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(string(kind))
}
