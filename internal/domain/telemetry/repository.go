package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for data points.
type Repository interface {
	CreateBatch(ctx context.Context, points []*DataPoint) error
	// ListByDevice returns points for a device ordered by timestamp
	// ascending, starting strictly after the given offset. A zero offset
	// starts from the beginning.
	ListByDevice(ctx context.Context, deviceID uuid.UUID, since time.Time, limit int) ([]*DataPoint, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID, since time.Time, limit int) ([]*DataPoint, error)
	CountByDevice(ctx context.Context, deviceID uuid.UUID) (int64, error)
}
