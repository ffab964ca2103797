package device

import (
	"time"

	"github.com/google/uuid"

	domainDevice "lab-device-hub/internal/domain/device"
)

type RegisterDeviceRequest struct {
	HardwareUID  string         `json:"hardware_uid" validate:"required,min=5,max=255"`
	DeviceName   *string        `json:"device_name" validate:"omitempty,min=2,max=100"`
	Vendor       *string        `json:"vendor" validate:"omitempty,max=100"`
	Model        *string        `json:"model" validate:"omitempty,max=100"`
	Transport    string         `json:"transport" validate:"required,oneof=serial mqtt sim"`
	Capabilities []string       `json:"capabilities" validate:"omitempty,dive,min=1,max=100"`
	Config       map[string]any `json:"config"`
}

type UpdateDeviceRequest struct {
	DeviceName   *string        `json:"device_name" validate:"omitempty,min=2,max=100"`
	Vendor       *string        `json:"vendor" validate:"omitempty,max=100"`
	Model        *string        `json:"model" validate:"omitempty,max=100"`
	Capabilities []string       `json:"capabilities" validate:"omitempty,dive,min=1,max=100"`
	Config       map[string]any `json:"config"`
}

type DeviceFilterRequest struct {
	Transport       *string `form:"transport" validate:"omitempty,oneof=serial mqtt sim"`
	ConnectionState *string `form:"connection_state" validate:"omitempty,oneof=offline connecting online error maintenance"`
	IncludeRetired  bool    `form:"include_retired"`
	Search          string  `form:"search"`
	Page            int     `form:"page" validate:"omitempty,min=1"`
	PageSize        int     `form:"page_size" validate:"omitempty,min=1,max=100"`
	SortBy          string  `form:"sort_by" validate:"omitempty,oneof=created_at updated_at last_seen_at hardware_uid"`
	SortOrder       string  `form:"sort_order" validate:"omitempty,oneof=asc desc"`
}

type DeviceResponse struct {
	ID              uuid.UUID                     `json:"id"`
	HardwareUID     string                        `json:"hardware_uid"`
	DeviceName      *string                       `json:"device_name"`
	Vendor          *string                       `json:"vendor"`
	Model           *string                       `json:"model"`
	Transport       domainDevice.TransportKind    `json:"transport"`
	ConnectionState domainDevice.ConnectionState  `json:"connection_state"`
	Capabilities    []string                      `json:"capabilities"`
	Config          map[string]any                `json:"config"`
	Retired         bool                          `json:"retired"`
	IsOnline        bool                          `json:"is_online"`
	LastSeenAt      *time.Time                    `json:"last_seen_at"`
	CreatedAt       time.Time                     `json:"created_at"`
	UpdatedAt       time.Time                     `json:"updated_at"`
}

type DeviceListResponse struct {
	Devices    []DeviceResponse `json:"devices"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

func ToDeviceResponse(d *domainDevice.Device) *DeviceResponse {
	if d == nil {
		return nil
	}
	return &DeviceResponse{
		ID:              d.ID,
		HardwareUID:     d.HardwareUID,
		DeviceName:      d.DeviceName,
		Vendor:          d.Vendor,
		Model:           d.Model,
		Transport:       d.Transport,
		ConnectionState: d.ConnectionState,
		Capabilities:    d.Capabilities,
		Config:          d.Config,
		Retired:         d.Retired,
		IsOnline:        d.IsOnline(),
		LastSeenAt:      d.LastSeenAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func ToDomainFilter(req *DeviceFilterRequest) *domainDevice.Filter {
	filter := &domainDevice.Filter{
		IncludeRetired: req.IncludeRetired,
		Search:         req.Search,
		Page:           req.Page,
		PageSize:       req.PageSize,
		SortBy:         req.SortBy,
		SortOrder:      req.SortOrder,
	}
	if req.Transport != nil {
		t := domainDevice.TransportKind(*req.Transport)
		filter.Transport = &t
	}
	if req.ConnectionState != nil {
		s := domainDevice.ConnectionState(*req.ConnectionState)
		filter.ConnectionState = &s
	}
	return filter
}
