package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-playout/internal/bridges"
	"github.com/nerrad567/gray-logic-playout/internal/bridges/router"
	"github.com/nerrad567/gray-logic-playout/internal/device"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-playout/internal/scheduler"
	"github.com/nerrad567/gray-logic-playout/migrations"
)

// app is the store-backed core every subcommand starts from.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	db       *database.DB
	devices  *device.Registry
	store    *scheduler.SQLiteStore
	notifier *mqtt.Notifier
	mqtt     *mqtt.Client
}

// openApp loads configuration, opens and migrates the database, and warms
// the device registry.
func openApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	log := logging.New(cfg.Logging, version)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("device"))
	if err := registry.RefreshCache(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("loading device registry: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		devices: registry,
		store:   scheduler.NewSQLiteStore(db.DB),
	}, nil
}

// close releases everything openApp and enableNotifier acquired.
func (a *app) close() {
	if a.mqtt != nil {
		if err := a.mqtt.Close(); err != nil {
			a.log.Error("error closing MQTT", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
}

// newLinks builds the link pools from the links section of the config.
func (a *app) newLinks() *bridges.Links {
	return bridges.New(bridges.Options{
		ConnectTimeout:    a.cfg.Links.ConnectTimeout,
		CommandTimeout:    a.cfg.Links.CommandTimeout,
		ReconnectInterval: a.cfg.Links.ReconnectInterval,
		Router: router.Options{
			Matrix: byte(a.cfg.Links.Router.Matrix),
			Level:  byte(a.cfg.Links.Router.Level),
		},
		Logger: a.log.Component("devicelink"),
	})
}

// newScheduler builds a scheduler over the store and links.
func (a *app) newScheduler(links scheduler.DeviceLinks) *scheduler.Scheduler {
	return scheduler.New(a.store, links, scheduler.Options{
		Location:      a.cfg.SchedulerLocation(),
		RunNowTimeout: a.cfg.Scheduler.RunNowTimeout,
		Logger:        a.log.Component("scheduler"),
	})
}

// enableNotifier connects a quiet MQTT client so store edits reach a
// running engine. Without a broker the edit still lands in the store and
// the engine picks it up on its next start.
func (a *app) enableNotifier() {
	if !a.cfg.MQTT.Enabled {
		return
	}

	cfg := a.cfg.MQTT
	cfg.Broker.ClientID = fmt.Sprintf("%s-cli-%s", cfg.Broker.ClientID, scheduler.GenerateID()[:8])

	client, err := mqtt.ConnectQuiet(cfg)
	if err != nil {
		a.log.Warn("engine not notified, MQTT unavailable", "error", err)
		return
	}
	client.SetLogger(a.log)
	a.mqtt = client
	a.notifier = mqtt.NewNotifier(client, client.Topics(), client.QoS())
}

// notifySchedule tells a running engine about a schedule edit.
func (a *app) notifySchedule(id string, action mqtt.ScheduleAction) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Schedule(id, action); err != nil {
		a.log.Warn("failed to notify engine", "schedule_id", id, "action", action, "error", err)
	}
}

// notifyDevice tells a running engine about a device edit.
func (a *app) notifyDevice(id string, action mqtt.DeviceAction) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Device(id, action); err != nil {
		a.log.Warn("failed to notify engine", "device_id", id, "action", action, "error", err)
	}
}
