// Playout - Device Communication & Scheduling Engine
//
// This is the main entry point for the playout engine. It drives broadcast
// graphics systems over a line protocol and video routers over a binary
// framed protocol, on a once or cron schedule or on demand.
//
// Run "playout serve" for the long-running engine. The other subcommands
// edit the store or talk to devices directly and exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides the default configuration path.
const configEnv = "PLAYOUT_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM so serve can shut down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the full command tree. Tests build their own tree per case.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "playout",
		Short:         "Broadcast device communication and scheduling engine",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"configuration file (default $"+configEnv+" or "+defaultConfigPath+")")

	paths := func() string { return resolveConfigPath(configPath) }

	root.AddCommand(
		newServeCmd(paths),
		newRunNowCmd(paths),
		newTestDeviceCmd(paths),
		newLogsCmd(paths),
		newDeviceCmd(paths),
		newScheduleCmd(paths),
		newMigrateCmd(paths),
	)
	return root
}

// resolveConfigPath picks the flag, then the environment, then the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path. A missing file at the default location falls back
// to built-in defaults so a fresh checkout runs without setup.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		if verr := cfg.Validate(); verr != nil {
			return nil, fmt.Errorf("validating default config: %w", verr)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}
