package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// DataPoint is one timestamped measurement emitted by a device.
// Immutable once created.
type DataPoint struct {
	ID        uuid.UUID
	DeviceID  uuid.UUID
	SessionID *uuid.UUID
	Timestamp time.Time
	Kind      string
	Value     float64
	Unit      *string
	Quality   *float64
}
