package device

import (
	"time"

	"github.com/nerrad567/gray-logic-playout/internal/devicelink"
)

// Device is a piece of broadcast equipment reachable over TCP.
// This matches the devices table in migrations/20260301_120000_initial_schema.up.sql.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// Network address of the device's control port.
	Host string `json:"host"`
	Port int    `json:"port"`

	// Enabled devices are eligible for scheduled commands.
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Address returns the link address for this device.
func (d *Device) Address() devicelink.Address {
	return devicelink.Address{
		DeviceID: d.ID,
		Host:     d.Host,
		Port:     d.Port,
	}
}

// DeepCopy returns an independent copy of the Device.
// Every field is a value type, so a shallow copy is sufficient.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// Kind is the protocol family a device speaks.
type Kind string

// Device kinds.
const (
	// KindGraphics devices take a line-oriented ASCII protocol (TAKE <id>).
	KindGraphics Kind = "graphics"

	// KindRouter devices take the binary framed crosspoint protocol.
	KindRouter Kind = "router"
)

// AllKinds returns all valid device kinds.
func AllKinds() []Kind {
	return []Kind{KindGraphics, KindRouter}
}
