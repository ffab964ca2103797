package command

import (
	"time"

	"github.com/google/uuid"
)

// Command is one discrete operation requested of a device, tracked
// through a monotonic lifecycle.
type Command struct {
	ID          uuid.UUID
	DeviceID    uuid.UUID
	SessionID   *uuid.UUID
	RequesterID string
	Operation   string
	Parameters  map[string]any
	Status      Status
	Result      map[string]any
	ErrorDetail *string
	SubmittedAt time.Time
	CompletedAt *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusExecuting Status = "executing"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// rank orders statuses along the lifecycle. Terminal statuses share the
// highest rank so no terminal state can replace another.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusExecuting:
		return 2
	case StatusExecuted, StatusFailed, StatusCancelled:
		return 3
	default:
		return -1
	}
}

// CanTransition reports whether moving to next keeps the lifecycle
// monotonic. A status never regresses and terminal statuses are final.
func (s Status) CanTransition(next Status) bool {
	if s.rank() >= 3 {
		return false
	}
	return next.rank() > s.rank()
}

// Terminal reports whether the command has finished.
func (s Status) Terminal() bool {
	return s.rank() >= 3
}
