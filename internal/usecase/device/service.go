package device

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainDevice "lab-device-hub/internal/domain/device"
	domainReservation "lab-device-hub/internal/domain/reservation"
	domainSession "lab-device-hub/internal/domain/session"
	"lab-device-hub/internal/logger"
	appErrors "lab-device-hub/pkg/errors"
	"lab-device-hub/pkg/utils"
)

// Service implements device registry use cases.
type Service struct {
	deviceRepo      domainDevice.Repository
	sessionRepo     domainSession.Repository
	reservationRepo domainReservation.Repository
}

// NewService creates a new device service
func NewService(
	deviceRepo domainDevice.Repository,
	sessionRepo domainSession.Repository,
	reservationRepo domainReservation.Repository,
) *Service {
	return &Service{
		deviceRepo:      deviceRepo,
		sessionRepo:     sessionRepo,
		reservationRepo: reservationRepo,
	}
}

func (s *Service) RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) (*DeviceResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	existingDevice, _ := s.deviceRepo.GetByHardwareUID(ctx, req.HardwareUID)
	if existingDevice != nil {
		return nil, appErrors.NewAppError("DEVICE_EXISTS", "Device with this hardware UID already exists", nil)
	}

	device := &domainDevice.Device{
		HardwareUID:     req.HardwareUID,
		DeviceName:      req.DeviceName,
		Vendor:          req.Vendor,
		Model:           req.Model,
		Transport:       domainDevice.TransportKind(req.Transport),
		ConnectionState: domainDevice.StateOffline,
		Capabilities:    req.Capabilities,
		Config:          req.Config,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if err := s.deviceRepo.Create(ctx, device); err != nil {
		return nil, err
	}

	logger.Info("Device registered",
		zap.String("device_id", device.ID.String()),
		zap.String("hardware_uid", device.HardwareUID),
		zap.String("transport", string(device.Transport)),
		zap.String("event", "device_registered"),
	)

	return ToDeviceResponse(device), nil
}

func (s *Service) GetDevice(ctx context.Context, deviceID uuid.UUID) (*DeviceResponse, error) {
	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	return ToDeviceResponse(device), nil
}

func (s *Service) GetDeviceByHardwareUID(ctx context.Context, hardwareUID string) (*DeviceResponse, error) {
	device, err := s.deviceRepo.GetByHardwareUID(ctx, hardwareUID)
	if err != nil {
		return nil, err
	}

	return ToDeviceResponse(device), nil
}

func (s *Service) ListDevices(ctx context.Context, filter *DeviceFilterRequest) (*DeviceListResponse, error) {
	if err := utils.ValidateStruct(filter); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid filter", err)
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	devices, total, err := s.deviceRepo.List(ctx, ToDomainFilter(filter))
	if err != nil {
		return nil, err
	}

	responses := make([]DeviceResponse, len(devices))
	for i, d := range devices {
		responses[i] = *ToDeviceResponse(d)
	}

	totalPages := int(total) / filter.PageSize
	if int(total)%filter.PageSize > 0 {
		totalPages++
	}

	return &DeviceListResponse{
		Devices:    responses,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *Service) UpdateDevice(ctx context.Context, deviceID uuid.UUID, req *UpdateDeviceRequest) (*DeviceResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Retired {
		return nil, domainDevice.ErrDeviceRetired
	}

	if req.DeviceName != nil {
		device.DeviceName = req.DeviceName
	}
	if req.Vendor != nil {
		device.Vendor = req.Vendor
	}
	if req.Model != nil {
		device.Model = req.Model
	}
	if req.Capabilities != nil {
		device.Capabilities = req.Capabilities
	}
	if req.Config != nil {
		device.Config = req.Config
	}

	if err := s.deviceRepo.Update(ctx, device); err != nil {
		return nil, err
	}

	logger.Info("Device updated",
		zap.String("device_id", device.ID.String()),
		zap.String("event", "device_updated"),
	)

	return ToDeviceResponse(device), nil
}

// RetireDevice permanently removes a device from scheduling. Refused
// while the device still has an active session or pending reservations.
func (s *Service) RetireDevice(ctx context.Context, deviceID uuid.UUID) error {
	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.Retired {
		return domainDevice.ErrDeviceRetired
	}

	if _, err := s.sessionRepo.GetActiveByDevice(ctx, deviceID); err == nil {
		return domainDevice.ErrDeviceReferenced
	}

	activeReservations, err := s.reservationRepo.CountActiveByDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if activeReservations > 0 {
		return domainDevice.ErrDeviceReferenced
	}

	if err := s.deviceRepo.Retire(ctx, deviceID); err != nil {
		return err
	}

	logger.Info("Device retired",
		zap.String("device_id", deviceID.String()),
		zap.String("event", "device_retired"),
	)

	return nil
}
