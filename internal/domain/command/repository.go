package command

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for command records.
type Repository interface {
	Create(ctx context.Context, cmd *Command) error
	GetByID(ctx context.Context, commandID uuid.UUID) (*Command, error)
	Update(ctx context.Context, cmd *Command) error
	ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]*Command, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Command, error)
}
