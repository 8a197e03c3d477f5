package scheduler

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const maxNameLength = 100

// cronParser accepts the standard five fields plus @hourly-style descriptors.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidCron, expr, err)
	}
	return sched, nil
}

// ValidateSchedule checks a schedule before it is persisted.
func ValidateSchedule(s *Schedule) error {
	if s == nil {
		return ErrInvalidSchedule
	}
	if strings.TrimSpace(s.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidSchedule)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidSchedule, maxNameLength)
	}

	if err := ValidatePayload(s.CommandKind, s.CommandPayload); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	switch s.ScheduleKind {
	case ScheduleRecurring:
		if s.CronExpression == "" {
			return fmt.Errorf("%w: recurring schedule requires cron_expression", ErrInvalidSchedule)
		}
		if _, err := ParseCron(s.CronExpression); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
	case ScheduleOnce:
		if s.RunAt == nil {
			return fmt.Errorf("%w: once schedule requires run_at", ErrInvalidSchedule)
		}
	default:
		return fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidSchedule, s.ScheduleKind)
	}
	return nil
}

// GenerateID creates a new UUID for a schedule or log entry.
func GenerateID() string {
	return uuid.New().String()
}
