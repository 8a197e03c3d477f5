package scheduler

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-playout/internal/device"
)

// CommandKind selects which protocol a schedule drives.
type CommandKind string

// Command kinds.
const (
	// CommandTake plays a graphic by take id over the line protocol.
	CommandTake CommandKind = "take"

	// CommandRoute switches a router crosspoint over the binary protocol.
	CommandRoute CommandKind = "route"
)

// ScheduleKind is how a schedule fires.
type ScheduleKind string

// Schedule kinds.
const (
	// ScheduleOnce fires a single time at RunAt.
	ScheduleOnce ScheduleKind = "once"

	// ScheduleRecurring fires on every match of CronExpression.
	ScheduleRecurring ScheduleKind = "recurring"
)

// Status is the outcome recorded in a CommandLog.
type Status string

// Log statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Schedule is a declarative command to run at a time or on a cron.
// This matches the schedules table in migrations/20260301_120000_initial_schema.up.sql.
type Schedule struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`

	CommandKind CommandKind `json:"command_kind"`

	// CommandPayload decodes to a TakePayload or RoutePayload by CommandKind.
	CommandPayload json.RawMessage `json:"command_payload"`

	ScheduleKind   ScheduleKind `json:"schedule_kind"`
	CronExpression string       `json:"cron_expression,omitempty"`
	RunAt          *time.Time   `json:"run_at,omitempty"`

	Enabled bool       `json:"enabled"`
	LastRun *time.Time `json:"last_run,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleWithDevice is an enabled schedule joined with its device's
// current address.
type ScheduleWithDevice struct {
	Schedule
	Device device.Device
}

// ScheduleUpdate is a partial update of a schedule's run state.
// Nil fields are left unchanged.
type ScheduleUpdate struct {
	Enabled *bool
	LastRun *time.Time
	NextRun *time.Time
}

// CommandLog is the append-only record of one execution.
// This matches the command_logs table.
type CommandLog struct {
	ID string `json:"id"`

	// ScheduleID is nil for logs whose schedule has since been deleted.
	ScheduleID *string `json:"schedule_id,omitempty"`
	DeviceID   string  `json:"device_id"`

	// Command is the literal command that was sent.
	Command  string `json:"command"`
	Status   Status `json:"status"`
	Response string `json:"response"`

	ExecutedAt time.Time `json:"executed_at"`
}

// Trigger is what started an execution.
type Trigger string

// Triggers.
const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Execution is delivered to subscribers after each execution has been logged.
type Execution struct {
	Log         CommandLog    `json:"log"`
	CommandKind CommandKind   `json:"command_kind"`
	Trigger     Trigger       `json:"trigger"`
	Duration    time.Duration `json:"-"`
}
