// Package device provides the device catalogue for the playout engine.
//
// A device is one piece of broadcast equipment with a TCP control port:
// either a graphics engine driven by the line protocol, or a routing
// matrix driven by the binary framed protocol.
//
// # Key Types
//
//   - Device: id, name, kind, host, port and enabled flag
//   - Kind: KindGraphics or KindRouter
//   - Repository / SQLiteRepository: persistence
//   - Registry: cached, thread-safe access with change notifications
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev := &device.Device{
//	    Name: "Studio A CG", Kind: device.KindGraphics,
//	    Host: "10.0.0.21", Port: 5250, Enabled: true,
//	}
//	if err := registry.CreateDevice(ctx, dev); err != nil {
//	    return err
//	}
//
// Change listeners registered with OnChange let the scheduler tear down
// links and jobs when a device is readdressed or removed.
package device
