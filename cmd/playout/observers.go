package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-playout/internal/device"
	"github.com/nerrad567/gray-logic-playout/internal/devicelink"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-playout/internal/scheduler"
)

// commandTimeout bounds work done for a single remote command.
const commandTimeout = 30 * time.Second

// executionEvent converts a logged execution to its MQTT event.
func executionEvent(ex scheduler.Execution) mqtt.ScheduleExecutedEvent {
	ev := mqtt.ScheduleExecutedEvent{
		LogID:       ex.Log.ID,
		DeviceID:    ex.Log.DeviceID,
		CommandKind: string(ex.CommandKind),
		Command:     ex.Log.Command,
		Status:      string(ex.Log.Status),
		Response:    ex.Log.Response,
		Trigger:     string(ex.Trigger),
		DurationMS:  ex.Duration.Milliseconds(),
		ExecutedAt:  ex.Log.ExecutedAt,
	}
	if ex.Log.ScheduleID != nil {
		ev.ScheduleID = *ex.Log.ScheduleID
	}
	return ev
}

// commandMetric converts a logged execution to its InfluxDB point.
func commandMetric(ex scheduler.Execution) influxdb.CommandMetric {
	m := influxdb.CommandMetric{
		DeviceID:    ex.Log.DeviceID,
		CommandKind: string(ex.CommandKind),
		Status:      string(ex.Log.Status),
		Trigger:     string(ex.Trigger),
		Duration:    ex.Duration,
		ExecutedAt:  ex.Log.ExecutedAt,
	}
	if ex.Log.ScheduleID != nil {
		m.ScheduleID = *ex.Log.ScheduleID
	}
	return m
}

// linkStateEvent converts a link state transition to its MQTT event.
func linkStateEvent(kind device.Kind, addr devicelink.Address, state devicelink.State) mqtt.LinkStateEvent {
	return mqtt.LinkStateEvent{
		DeviceID:  addr.DeviceID,
		Kind:      string(kind),
		Address:   addr.HostPort(),
		State:     state.String(),
		Timestamp: time.Now().UTC(),
	}
}

// eventSink receives executions and link transitions. Either side may be nil.
type eventSink struct {
	events  *mqtt.EventPublisher
	metrics *influxdb.Client
	log     *logging.Logger
}

func (s eventSink) execution(ex scheduler.Execution) {
	if s.events != nil {
		if err := s.events.PublishScheduleExecuted(executionEvent(ex)); err != nil {
			s.log.Warn("failed to publish execution event", "log_id", ex.Log.ID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.WriteCommandMetric(commandMetric(ex))
	}
}

func (s eventSink) linkState(kind device.Kind, addr devicelink.Address, state devicelink.State) {
	if s.events != nil {
		if err := s.events.PublishLinkState(linkStateEvent(kind, addr, state)); err != nil {
			s.log.Warn("failed to publish link state", "device_id", addr.DeviceID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.WriteLinkState(addr.DeviceID, string(kind), state.String())
	}
}

// jobControl is the part of the scheduler remote commands drive.
type jobControl interface {
	RunNow(ctx context.Context, id string) devicelink.Result
	UpdateSchedule(ctx context.Context, id string) error
	CancelJob(id string) bool
	EnableSchedule(ctx context.Context, id string) error
	DisableSchedule(ctx context.Context, id string) error
	DeviceUpdated(ctx context.Context, deviceID string) error
	DeviceRemoved(deviceID string)
}

var _ jobControl = (*scheduler.Scheduler)(nil)

// commandHandlers maps remote commands onto jobs.
func commandHandlers(ctx context.Context, jobs jobControl, log *logging.Logger) mqtt.CommandHandlers {
	return mqtt.CommandHandlers{
		Schedule: func(cmd mqtt.ScheduleCommand) error {
			cctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()
			log.Info("schedule command received", "schedule_id", cmd.ScheduleID, "action", cmd.Action)

			switch cmd.Action {
			case mqtt.ActionRun:
				// The outcome is already logged and published as an execution.
				result := jobs.RunNow(cctx, cmd.ScheduleID)
				if !result.Success && result.Command == "" {
					return fmt.Errorf("run %s: %s", cmd.ScheduleID, result.Message)
				}
				return nil
			case mqtt.ActionReload:
				return ignoreMissing(jobs.UpdateSchedule(cctx, cmd.ScheduleID), func() {
					jobs.CancelJob(cmd.ScheduleID)
				})
			case mqtt.ActionCancel:
				jobs.CancelJob(cmd.ScheduleID)
				return nil
			case mqtt.ActionEnable:
				return jobs.EnableSchedule(cctx, cmd.ScheduleID)
			case mqtt.ActionDisable:
				return jobs.DisableSchedule(cctx, cmd.ScheduleID)
			default:
				return fmt.Errorf("%w: unknown schedule action %q", mqtt.ErrInvalidCommand, cmd.Action)
			}
		},
		Device: func(cmd mqtt.DeviceCommand) error {
			cctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()
			log.Info("device command received", "device_id", cmd.DeviceID, "action", cmd.Action)

			switch cmd.Action {
			case mqtt.DeviceUpdated:
				return ignoreMissing(jobs.DeviceUpdated(cctx, cmd.DeviceID), func() {
					jobs.DeviceRemoved(cmd.DeviceID)
				})
			case mqtt.DeviceRemoved:
				jobs.DeviceRemoved(cmd.DeviceID)
				return nil
			default:
				return fmt.Errorf("%w: unknown device action %q", mqtt.ErrInvalidCommand, cmd.Action)
			}
		},
	}
}

// ignoreMissing runs gone and swallows err when the record no longer exists.
func ignoreMissing(err error, gone func()) error {
	if errors.Is(err, scheduler.ErrScheduleNotFound) || errors.Is(err, device.ErrDeviceNotFound) {
		gone()
		return nil
	}
	return err
}
