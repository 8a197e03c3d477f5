package scheduler

import "errors"

// Domain errors for the scheduler package.
var (
	// ErrScheduleNotFound is returned when a schedule ID does not exist.
	ErrScheduleNotFound = errors.New("scheduler: schedule not found")

	// ErrScheduleExists is returned when creating a schedule whose ID is taken.
	ErrScheduleExists = errors.New("scheduler: schedule already exists")

	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

	// ErrInvalidCron is returned when a cron expression cannot be parsed.
	ErrInvalidCron = errors.New("scheduler: invalid cron expression")

	// ErrInvalidCommand is returned when a command payload does not decode
	// for its command kind.
	ErrInvalidCommand = errors.New("scheduler: invalid command data")

	// ErrStopped is returned by operations attempted after StopAll.
	ErrStopped = errors.New("scheduler: stopped")
)
