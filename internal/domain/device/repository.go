package device

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for device repository operations
type Repository interface {
	Create(ctx context.Context, device *Device) error
	GetByID(ctx context.Context, deviceID uuid.UUID) (*Device, error)
	GetByHardwareUID(ctx context.Context, hardwareUID string) (*Device, error)
	Update(ctx context.Context, device *Device) error
	UpdateConnectionState(ctx context.Context, deviceID uuid.UUID, state ConnectionState) error
	UpdateLastSeen(ctx context.Context, deviceID uuid.UUID) error
	Retire(ctx context.Context, deviceID uuid.UUID) error
	List(ctx context.Context, filter *Filter) ([]*Device, int64, error)
}

// Filter represents filtering options for listing devices
type Filter struct {
	Transport       *TransportKind
	ConnectionState *ConnectionState
	IncludeRetired  bool
	Search          string
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}
