package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDevice   = errors.New("unknown device")
	ErrDeviceNotOnline = errors.New("device is not online")
	ErrDeviceRetired   = errors.New("device is retired")
	ErrDeviceInUse     = errors.New("device is referenced by sessions or reservations")

	ErrConnectionFailed = errors.New("connection failed after retry budget exhausted")
	ErrTimeout          = errors.New("operation timed out")
	ErrAdapterError     = errors.New("adapter reported a transport failure")
	ErrAdapterNotFound  = errors.New("no adapter registered for transport kind")

	ErrAlreadyInUse    = errors.New("device already has an active session")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session already closed")

	ErrOverlap             = errors.New("reservation window overlaps an approved reservation")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidWindow       = errors.New("reservation window is invalid")
	ErrInvalidTransition   = errors.New("invalid status transition")

	ErrCommandNotFound  = errors.New("command not found")
	ErrCommandNotActive = errors.New("command can no longer be cancelled")
	ErrQueueFull        = errors.New("device command queue is full")
	ErrDispatcherClosed = errors.New("dispatcher is shutting down")
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
