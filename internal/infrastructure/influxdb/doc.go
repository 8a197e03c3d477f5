// Package influxdb records playout metrics in InfluxDB v2.
//
// Every command execution becomes one device_commands point, and every
// link state transition one device_links point. Both are optional: with
// influxdb.enabled false, Connect returns ErrDisabled and the engine runs
// without metrics.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommandMetric(influxdb.CommandMetric{
//	    DeviceID:    "router-main",
//	    CommandKind: "route",
//	    Status:      "success",
//	    Duration:    12 * time.Millisecond,
//	})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures are delivered to the
// callback registered with SetOnError.
package influxdb
