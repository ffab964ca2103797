package reservation

import "errors"

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrWindowOverlap       = errors.New("reservation window overlaps an approved reservation")
	ErrInvalidWindow       = errors.New("invalid reservation window")
)
