package device

import (
	"time"

	"github.com/google/uuid"
)

// Device represents a laboratory instrument entity in the domain
type Device struct {
	ID              uuid.UUID
	HardwareUID     string
	DeviceName      *string
	Vendor          *string
	Model           *string
	Transport       TransportKind
	ConnectionState ConnectionState
	Capabilities    []string
	Config          map[string]any
	Retired         bool
	LastSeenAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransportKind is the declared transport a device speaks.
type TransportKind string

const (
	TransportSerial TransportKind = "serial"
	TransportMQTT   TransportKind = "mqtt"
	TransportSim    TransportKind = "sim"
)

// ConnectionState reflects the link status of a device. Only the
// connection manager may mutate it; everyone else reads.
type ConnectionState string

const (
	StateOffline     ConnectionState = "offline"
	StateConnecting  ConnectionState = "connecting"
	StateOnline      ConnectionState = "online"
	StateError       ConnectionState = "error"
	StateMaintenance ConnectionState = "maintenance"
)

// IsOnline reports whether the device is currently usable for commands.
func (d *Device) IsOnline() bool {
	return d.ConnectionState == StateOnline
}

// HasCapability checks the declared capability list.
func (d *Device) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}
