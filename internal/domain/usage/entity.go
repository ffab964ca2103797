package usage

import (
	"time"

	"github.com/google/uuid"
)

// Statistics holds the rolling per-device usage counters maintained by
// the usage monitor. Recomputed incrementally as sessions close.
type Statistics struct {
	DeviceID       uuid.UUID
	SessionCount   int64
	UsageSeconds   float64
	DataPointCount int64
	ErrorCount     int64
	LastUsedAt     *time.Time
	Availability   float64
	UpdatedAt      time.Time
}
