package reservation

import (
	"time"

	"github.com/google/uuid"
)

// Reservation is a future-dated request for an exclusive session on one
// device, covering the half-open window [StartAt, EndAt).
type Reservation struct {
	ID          uuid.UUID
	DeviceID    uuid.UUID
	RequesterID string
	StartAt     time.Time
	EndAt       time.Time
	Status      Status
	SessionID   *uuid.UUID
	Note        *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Overlaps reports whether two half-open windows intersect.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartAt.Before(end) && start.Before(r.EndAt)
}

// Due reports whether the window has started at the given instant.
func (r *Reservation) Due(now time.Time) bool {
	return !now.Before(r.StartAt)
}

// Expired reports whether the window has elapsed at the given instant.
func (r *Reservation) Expired(now time.Time) bool {
	return !now.Before(r.EndAt)
}
