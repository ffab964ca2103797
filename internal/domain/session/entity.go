package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is an exclusive, time-bounded usage grant on one device.
// At most one session per device is active at any instant.
type Session struct {
	ID            uuid.UUID
	DeviceID      uuid.UUID
	RequesterID   string
	ReservationID *uuid.UUID
	Status        Status
	CloseReason   *string
	StartedAt     time.Time
	EndedAt       *time.Time
	CommandIDs    []uuid.UUID
	DataPointIDs  []uuid.UUID
}

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
	StatusError  Status = "error"
)

// Active reports whether the session still holds the device.
func (s *Session) Active() bool {
	return s.Status == StatusActive
}

// Duration returns the active time of the session so far.
func (s *Session) Duration() time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}
