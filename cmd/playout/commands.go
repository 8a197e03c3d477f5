package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-playout/internal/devicelink"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-playout/internal/scheduler"
)

func newRunNowCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run-now <schedule-id>",
		Short: "Execute a schedule once, immediately",
		Long: "Execute a schedule once against its device and record the outcome in the command log.\n" +
			"The schedule's timing is not changed, except that a one-time schedule is disabled afterwards.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			sched := a.newScheduler(a.newLinks())
			defer sched.StopAll()

			result := sched.RunNow(cmd.Context(), args[0])
			printResult(cmd.OutOrStdout(), result)

			// A one-time schedule is now disabled; a running engine drops its job.
			a.enableNotifier()
			a.notifySchedule(args[0], mqtt.ActionReload)

			if !result.Success {
				return fmt.Errorf("run %s failed: %s", args[0], result.Message)
			}
			return nil
		},
	}
}

func newTestDeviceCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-device <device-id>",
		Short: "Open a connection to a device without sending a command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			dev, err := a.devices.GetDevice(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("device %s: %w", args[0], err)
			}

			links := a.newLinks()
			defer links.DisconnectAll()

			result := links.TestConnection(cmd.Context(), dev)
			printResult(cmd.OutOrStdout(), result)
			if !result.Success {
				return fmt.Errorf("device %s unreachable at %s", dev.ID, dev.Address().HostPort())
			}
			return nil
		},
	}
}

func newLogsCmd(configPath func() string) *cobra.Command {
	var filter scheduler.LogFilter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent command log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			logs, err := a.store.ListLogs(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("listing logs: %w", err)
			}
			return printLogs(cmd.OutOrStdout(), logs)
		},
	}
	cmd.Flags().StringVar(&filter.ScheduleID, "schedule", "", "only entries for this schedule")
	cmd.Flags().StringVar(&filter.DeviceID, "device", "", "only entries for this device")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 0, "maximum entries (default 100)")
	return cmd
}

func printResult(w io.Writer, r devicelink.Result) {
	status := "ok"
	if !r.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "%s: %s\n", status, r.Message)
	if r.Command != "" {
		fmt.Fprintf(w, "command: %s\n", r.Command)
	}
	if r.Response != "" {
		fmt.Fprintf(w, "response: %s\n", r.Response)
	}
}

func printLogs(w io.Writer, logs []scheduler.CommandLog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXECUTED\tSCHEDULE\tDEVICE\tSTATUS\tCOMMAND\tRESPONSE")
	for _, l := range logs {
		scheduleID := "-"
		if l.ScheduleID != nil {
			scheduleID = *l.ScheduleID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ExecutedAt.Local().Format(time.RFC3339),
			scheduleID,
			l.DeviceID,
			l.Status,
			l.Command,
			l.Response,
		)
	}
	return tw.Flush()
}
