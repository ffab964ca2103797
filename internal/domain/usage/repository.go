package usage

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists usage statistics snapshots.
type Repository interface {
	Upsert(ctx context.Context, stats *Statistics) error
	GetByDevice(ctx context.Context, deviceID uuid.UUID) (*Statistics, error)
}
