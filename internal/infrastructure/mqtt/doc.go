// Package mqtt connects the playout engine to an MQTT broker.
//
// The broker is optional. When configured, the engine:
//   - keeps a retained online/offline status, with a Last Will for crashes
//   - publishes one event per command execution
//   - publishes retained link state per device
//   - accepts schedule and device commands from other processes
//
// # Topics
//
// Everything lives under a configurable prefix (default "playout"):
//
//	playout/system/status                          retained
//	playout/event/schedule-executed/{device_id}
//	playout/state/link/{device_id}                 retained
//	playout/command/schedule/{schedule_id}         {"action":"run|reload|cancel|enable|disable"}
//	playout/command/device/{device_id}             {"action":"updated|removed"}
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	events := mqtt.NewEventPublisher(client, client.Topics(), client.QoS())
//	err = mqtt.SubscribeCommands(client, client.Topics(), client.QoS(), mqtt.CommandHandlers{
//	    Schedule: func(cmd mqtt.ScheduleCommand) error { ... },
//	})
//
// EventPublisher, Notifier and SubscribeCommands take the small Publisher
// and Subscriber interfaces, so they work against any implementation.
package mqtt
