package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lab-device-hub/internal/domain/device"
)

// ConnConfig carries transport-specific connection parameters. Adapters
// validate their own parameters; callers pass the map through opaquely.
type ConnConfig struct {
	Address     string
	Credentials map[string]string
	Timeout     time.Duration
	Parameters  map[string]any
}

// Reading is one raw measurement drained from a device link, before the
// ingestion buffer tags it with device and session identity.
type Reading struct {
	Timestamp time.Time
	Kind      string
	Value     float64
	Unit      string
	Quality   *float64
}

// Adapter is the capability contract every transport driver satisfies.
// All operations on an unknown device fail with ErrUnknownDevice.
//
// Connect and SendCommand may block the caller, bounded by the config
// timeout. ReadData and LinkState never block.
type Adapter interface {
	Kind() device.TransportKind
	Connect(ctx context.Context, deviceID uuid.UUID, cfg ConnConfig) error
	// Disconnect is idempotent: disconnecting an already-disconnected
	// device succeeds.
	Disconnect(ctx context.Context, deviceID uuid.UUID) error
	// SendCommand transmits one command and waits up to the configured
	// timeout for an acknowledgement. A timeout surfaces as ErrTimeout.
	SendCommand(ctx context.Context, deviceID uuid.UUID, operation string, params map[string]any) (map[string]any, error)
	// ReadData drains currently buffered measurements.
	ReadData(deviceID uuid.UUID) []Reading
	// LinkState reflects the last observed link status. Informational
	// only; it never triggers reconnection.
	LinkState(deviceID uuid.UUID) device.ConnectionState
}

// LinkStats tracks per-link counters, the way every adapter reports them.
type LinkStats struct {
	CommandsSent  int64
	PointsRead    int64
	ConnectCount  int64
	LastError     string
	LastErrorAt   *time.Time
	ConnectedAt   *time.Time
	LastCommandAt *time.Time
}

// StatsReporter is implemented by adapters that expose link statistics.
type StatsReporter interface {
	LinkStats(deviceID uuid.UUID) LinkStats
}
