package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-playout/internal/device"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/mqtt"
)

func newDeviceCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage graphics systems and routers",
	}
	cmd.AddCommand(
		newDeviceListCmd(configPath),
		newDeviceAddCmd(configPath),
		newDeviceUpdateCmd(configPath),
		newDeviceRemoveCmd(configPath),
	)
	return cmd
}

func newDeviceListCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			devices, err := a.devices.ListDevices(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}
			return printDevices(cmd.OutOrStdout(), devices)
		},
	}
}

func newDeviceAddCmd(configPath func() string) *cobra.Command {
	var (
		d        device.Device
		kind     string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			d.Kind = device.Kind(kind)
			d.Enabled = !disabled
			if err := a.devices.CreateDevice(cmd.Context(), &d); err != nil {
				return fmt.Errorf("creating device: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&d.ID, "id", "", "device ID (default generated)")
	cmd.Flags().StringVar(&d.Name, "name", "", "display name")
	cmd.Flags().StringVar(&kind, "kind", "", "graphics or router")
	cmd.Flags().StringVar(&d.Host, "host", "", "control host")
	cmd.Flags().IntVar(&d.Port, "port", 0, "control port")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "exclude from scheduled commands")
	for _, name := range []string{"name", "kind", "host", "port"} {
		_ = cmd.MarkFlagRequired(name) //nolint:errcheck // flag defined above
	}
	return cmd
}

func newDeviceUpdateCmd(configPath func() string) *cobra.Command {
	var (
		name, host string
		port       int
		enabled    bool
	)

	cmd := &cobra.Command{
		Use:   "update <device-id>",
		Short: "Change a device's name, address or enabled flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.devices.GetDevice(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("device %s: %w", args[0], err)
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				d.Name = name
			}
			if flags.Changed("host") {
				d.Host = host
			}
			if flags.Changed("port") {
				d.Port = port
			}
			if flags.Changed("enabled") {
				d.Enabled = enabled
			}

			if err := a.devices.UpdateDevice(cmd.Context(), d); err != nil {
				return fmt.Errorf("updating device: %w", err)
			}
			a.enableNotifier()
			a.notifyDevice(d.ID, mqtt.DeviceUpdated)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&host, "host", "", "control host")
	cmd.Flags().IntVar(&port, "port", 0, "control port")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "include in scheduled commands")
	return cmd
}

func newDeviceRemoveCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <device-id>",
		Short: "Delete a device and its schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), configPath())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.devices.DeleteDevice(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("removing device %s: %w", args[0], err)
			}
			a.enableNotifier()
			a.notifyDevice(args[0], mqtt.DeviceRemoved)
			return nil
		},
	}
}

func printDevices(w io.Writer, devices []device.Device) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tADDRESS\tENABLED")
	for i := range devices {
		d := &devices[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Name, d.Kind, d.Address().HostPort(), strconv.FormatBool(d.Enabled))
	}
	return tw.Flush()
}
