package session

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for session records.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	GetActiveByDevice(ctx context.Context, deviceID uuid.UUID) (*Session, error)
	ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]*Session, error)
	CountByDevice(ctx context.Context, deviceID uuid.UUID) (int64, error)
}
