package device

import "errors"

var (
	ErrDeviceNotFound      = errors.New("device not found")
	ErrDeviceAlreadyExists = errors.New("device already exists")
	ErrDeviceRetired       = errors.New("device is retired")
	ErrDeviceReferenced    = errors.New("device is referenced by sessions or reservations")
	ErrInvalidTransport    = errors.New("invalid transport kind")
)
