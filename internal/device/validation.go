package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxHostLength = 253
	minPort       = 1
	maxPort       = 65535
)

var validKinds map[Kind]struct{}

func init() {
	validKinds = make(map[Kind]struct{}, len(AllKinds()))
	for _, k := range AllKinds() {
		validKinds[k] = struct{}{}
	}
}

// ValidateDevice performs validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateKind(d.Kind); err != nil {
		return err
	}
	return ValidateAddress(d.Host, d.Port)
}

// ValidateName checks that a name is non-empty and within length limits.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateKind checks that a kind is one of the known device families.
func ValidateKind(kind Kind) error {
	if _, ok := validKinds[kind]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return nil
}

// ValidateAddress checks the host is present and the port is a valid TCP port.
func ValidateAddress(host string, port int) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidAddress)
	}
	if len(host) > maxHostLength {
		return fmt.Errorf("%w: host exceeds %d characters", ErrInvalidAddress, maxHostLength)
	}
	if strings.ContainsAny(host, " /") {
		return fmt.Errorf("%w: host %q contains invalid characters", ErrInvalidAddress, host)
	}
	if port < minPort || port > maxPort {
		return fmt.Errorf("%w: port %d out of range %d-%d", ErrInvalidAddress, port, minPort, maxPort)
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
