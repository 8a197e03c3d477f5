package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-playout/internal/scheduler"
)

func newScheduleCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage once and recurring schedules",
	}
	cmd.AddCommand(
		newScheduleListCmd(configPath),
		newScheduleAddCmd(configPath),
		newScheduleToggleCmd(configPath, true),
		newScheduleToggleCmd(configPath, false),
		newScheduleRemoveCmd(configPath),
	)
	return cmd
}

func newScheduleListCmd(configPath func() string) *cobra.Command {
	var deviceID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			schedules, err := a.store.ListSchedules(cmd.Context(), deviceID)
			if err != nil {
				return fmt.Errorf("listing schedules: %w", err)
			}
			return printSchedules(cmd.OutOrStdout(), schedules)
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "", "only schedules for this device")
	return cmd
}

// scheduleFlags are the user inputs of "schedule add".
type scheduleFlags struct {
	id, deviceID, name string
	take               int
	source, dest       int
	cron, at           string
	disabled           bool
}

func newScheduleAddCmd(configPath func() string) *cobra.Command {
	var f scheduleFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a schedule",
		Example: `  playout schedule add --device gfx-1 --take 12 --at 2026-03-01T18:00:00Z
  playout schedule add --device rtr-1 --source 3 --destination 7 --cron "0 6 * * MON-FRI"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := buildSchedule(cmd, f)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.CreateSchedule(cmd.Context(), s); err != nil {
				return fmt.Errorf("creating schedule: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.ID)

			a.enableNotifier()
			a.notifySchedule(s.ID, mqtt.ActionReload)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.id, "id", "", "schedule ID (default generated)")
	flags.StringVar(&f.deviceID, "device", "", "target device ID")
	flags.StringVar(&f.name, "name", "", "display name")
	flags.IntVar(&f.take, "take", 0, "graphics take ID")
	flags.IntVar(&f.source, "source", 0, "router source")
	flags.IntVar(&f.dest, "destination", 0, "router destination")
	flags.StringVar(&f.cron, "cron", "", "5-field cron expression for a recurring schedule")
	flags.StringVar(&f.at, "at", "", "RFC 3339 time for a one-time schedule")
	flags.BoolVar(&f.disabled, "disabled", false, "create without scheduling")
	_ = cmd.MarkFlagRequired("device") //nolint:errcheck // flag defined above
	cmd.MarkFlagsMutuallyExclusive("take", "source")
	cmd.MarkFlagsMutuallyExclusive("take", "destination")
	cmd.MarkFlagsRequiredTogether("source", "destination")
	cmd.MarkFlagsMutuallyExclusive("cron", "at")
	cmd.MarkFlagsOneRequired("cron", "at")
	return cmd
}

// buildSchedule turns the add flags into a validated schedule.
func buildSchedule(cmd *cobra.Command, f scheduleFlags) (*scheduler.Schedule, error) {
	s := &scheduler.Schedule{
		ID:       f.id,
		DeviceID: f.deviceID,
		Name:     f.name,
		Enabled:  !f.disabled,
	}

	flags := cmd.Flags()
	switch {
	case flags.Changed("take"):
		s.CommandKind = scheduler.CommandTake
		s.CommandPayload = scheduler.TakeJSON(f.take)
	case flags.Changed("source"):
		s.CommandKind = scheduler.CommandRoute
		s.CommandPayload = scheduler.RouteJSON(f.source, f.dest)
	default:
		return nil, errors.New("one of --take or --source/--destination is required")
	}

	if f.cron != "" {
		s.ScheduleKind = scheduler.ScheduleRecurring
		s.CronExpression = f.cron
	} else {
		at, err := time.Parse(time.RFC3339, f.at)
		if err != nil {
			return nil, fmt.Errorf("--at: %w", err)
		}
		at = at.UTC()
		s.ScheduleKind = scheduler.ScheduleOnce
		s.RunAt = &at
	}

	if s.Name == "" {
		s.Name = defaultScheduleName(s, f)
	}

	if err := scheduler.ValidateSchedule(s); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultScheduleName(s *scheduler.Schedule, f scheduleFlags) string {
	if s.CommandKind == scheduler.CommandTake {
		return fmt.Sprintf("Take %d", f.take)
	}
	return fmt.Sprintf("Route %d to %d", f.source, f.dest)
}

func newScheduleToggleCmd(configPath func() string, enable bool) *cobra.Command {
	use, short, action := "disable", "Stop a schedule from firing", mqtt.ActionDisable
	if enable {
		use, short, action = "enable", "Allow a schedule to fire", mqtt.ActionEnable
	}

	return &cobra.Command{
		Use:   use + " <schedule-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.UpdateSchedule(cmd.Context(), args[0], scheduler.ScheduleUpdate{Enabled: &enable}); err != nil {
				return fmt.Errorf("%s schedule %s: %w", use, args[0], err)
			}
			a.enableNotifier()
			a.notifySchedule(args[0], action)
			return nil
		},
	}
}

func newScheduleRemoveCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <schedule-id>",
		Short: "Delete a schedule. Its command log entries are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.DeleteSchedule(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("removing schedule %s: %w", args[0], err)
			}
			a.enableNotifier()
			a.notifySchedule(args[0], mqtt.ActionCancel)
			return nil
		},
	}
}

func printSchedules(w io.Writer, schedules []scheduler.Schedule) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEVICE\tNAME\tCOMMAND\tWHEN\tENABLED\tLAST RUN\tNEXT RUN")
	for i := range schedules {
		s := &schedules[i]
		when := s.CronExpression
		if s.ScheduleKind == scheduler.ScheduleOnce && s.RunAt != nil {
			when = s.RunAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%t\t%s\t%s\n",
			s.ID, s.DeviceID, s.Name, s.CommandKind, s.CommandPayload,
			when, s.Enabled, formatOptional(s.LastRun), formatOptional(s.NextRun))
	}
	return tw.Flush()
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
