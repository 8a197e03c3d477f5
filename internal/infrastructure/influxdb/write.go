package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCommands = "device_commands"
	MeasurementLinks    = "device_links"
)

// CommandMetric describes one command execution.
type CommandMetric struct {
	DeviceID    string
	ScheduleID  string
	CommandKind string // take or route
	Status      string // success or error
	Trigger     string // scheduled or manual
	Duration    time.Duration
	ExecutedAt  time.Time
}

// WriteCommandMetric records one execution as a device_commands point.
//
// Tags: device_id, command_kind, status, trigger.
// Fields: duration_ms, success, schedule_id.
func (c *Client) WriteCommandMetric(m CommandMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(commandPoint(m))
}

func commandPoint(m CommandMetric) *write.Point {
	ts := m.ExecutedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := map[string]interface{}{
		"duration_ms": m.Duration.Milliseconds(),
		"success":     m.Status == "success",
	}
	if m.ScheduleID != "" {
		// A field, not a tag: schedule IDs are unbounded.
		fields["schedule_id"] = m.ScheduleID
	}

	return write.NewPoint(
		MeasurementCommands,
		map[string]string{
			"device_id":    m.DeviceID,
			"command_kind": m.CommandKind,
			"status":       m.Status,
			"trigger":      m.Trigger,
		},
		fields,
		ts,
	)
}

// WriteLinkState records a link state transition as a device_links point.
func (c *Client) WriteLinkState(deviceID, kind, state string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(linkPoint(deviceID, kind, state, time.Now()))
}

func linkPoint(deviceID, kind, state string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementLinks,
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
		},
		map[string]interface{}{
			"state":     state,
			"connected": state == "connected",
		},
		ts,
	)
}
