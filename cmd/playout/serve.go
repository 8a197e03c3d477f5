package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-playout/internal/device"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/mqtt"
)

func newServeCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load every enabled schedule and run until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath())
		},
	}
}

// runServe is the long-running engine.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runServe(ctx context.Context, configPath string) error {
	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	log := a.log
	log.Info("starting playout engine",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)
	log.Info("device registry initialised", "devices", a.devices.GetDeviceCount())

	links := a.newLinks()
	sched := a.newScheduler(links)
	sink := eventSink{log: log}

	// Connect to MQTT broker (optional). The engine runs without one.
	var mqttClient *mqtt.Client
	if a.cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(a.cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, events and remote commands disabled", "error", err)
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			mqttClient.SetLogger(log.Component("mqtt"))
			mqttClient.SetOnConnect(func() {
				log.Info("MQTT connected")
			})
			mqttClient.SetOnDisconnect(func(err error) {
				log.Warn("MQTT disconnected", "error", err)
			})
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
				"client_id", a.cfg.MQTT.Broker.ClientID,
				"topic_prefix", mqttClient.Topics().Prefix(),
			)
			sink.events = mqtt.NewEventPublisher(mqttClient, mqttClient.Topics(), mqttClient.QoS())
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if a.cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(a.cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", a.cfg.InfluxDB.URL,
			"org", a.cfg.InfluxDB.Org,
			"bucket", a.cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sink.metrics = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	links.SetStateListener(sink.linkState)
	unsubscribe := sched.Subscribe(sink.execution)
	defer unsubscribe()

	// Registry edits made in this process go straight to the scheduler.
	a.devices.OnChange(func(ctx context.Context, kind device.ChangeKind, id string) {
		switch kind {
		case device.ChangeUpdated:
			if err := sched.DeviceUpdated(ctx, id); err != nil {
				log.Error("failed to reschedule device", "device_id", id, "error", err)
			}
		case device.ChangeRemoved:
			sched.DeviceRemoved(id)
		}
	})

	if err := healthCheck(ctx, a.db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.StopAll()

	if mqttClient != nil {
		handlers := commandHandlers(ctx, sched, log.Component("commands"))
		deviceHandler := handlers.Device
		handlers.Device = func(cmd mqtt.DeviceCommand) error {
			// Edits from other processes leave this registry's cache stale.
			if err := a.devices.RefreshCache(ctx); err != nil {
				log.Warn("failed to refresh device cache", "error", err)
			}
			return deviceHandler(cmd)
		}
		if err := mqtt.SubscribeCommands(mqttClient, mqttClient.Topics(), mqttClient.QoS(), handlers); err != nil {
			return fmt.Errorf("subscribing to commands: %w", err)
		}
		log.Info("listening for remote commands",
			"schedules", mqttClient.Topics().AllScheduleCommands(),
			"devices", mqttClient.Topics().AllDeviceCommands(),
		)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"active_jobs", sched.ActiveJobCount(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Scheduler (cancel jobs, disconnect links, drain executions)
	// 2. Execution subscription
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if connected)
	// 5. Database

	log.Info("playout engine stopped")
	return nil
}

// healthCheck verifies the required infrastructure before jobs are loaded.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// MQTT is not checked: the engine keeps scheduling while the broker is
	// down and paho reconnects in the background.
	return nil
}
