package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for reservation records.
type Repository interface {
	Create(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, reservationID uuid.UUID) (*Reservation, error)
	Update(ctx context.Context, r *Reservation) error
	ListByDevice(ctx context.Context, deviceID uuid.UUID, statuses []Status) ([]*Reservation, error)
	// ListApprovedOverlapping returns approved reservations for the device
	// whose windows intersect [start, end).
	ListApprovedOverlapping(ctx context.Context, deviceID uuid.UUID, start, end time.Time) ([]*Reservation, error)
	// ListDue returns approved, not yet promoted reservations whose start
	// has arrived.
	ListDue(ctx context.Context, now time.Time) ([]*Reservation, error)
	// ListExpired returns approved reservations whose window has elapsed.
	ListExpired(ctx context.Context, now time.Time) ([]*Reservation, error)
	CountActiveByDevice(ctx context.Context, deviceID uuid.UUID) (int64, error)
}
