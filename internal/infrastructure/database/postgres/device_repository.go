package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainDevice "lab-device-hub/internal/domain/device"
	"lab-device-hub/internal/infrastructure/database/postgres/models"
)

// DeviceRepository implements the device repository interface.
type DeviceRepository struct {
	db *DB
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *DB) domainDevice.Repository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) Create(ctx context.Context, d *domainDevice.Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = time.Now()
	if d.ConnectionState == "" {
		d.ConnectionState = domainDevice.StateOffline
	}

	dbModel, err := toDeviceModel(d)
	if err != nil {
		return err
	}
	if err := r.db.DB.WithContext(ctx).Create(dbModel).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key value") {
			return domainDevice.ErrDeviceAlreadyExists
		}
		return fmt.Errorf("failed to create device: %w", err)
	}

	d.ID = dbModel.ID
	d.CreatedAt = dbModel.CreatedAt
	d.UpdatedAt = dbModel.UpdatedAt

	return nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, deviceID uuid.UUID) (*domainDevice.Device, error) {
	var dbModel models.DeviceModel
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", deviceID).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainDevice.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return toDeviceEntity(&dbModel), nil
}

func (r *DeviceRepository) GetByHardwareUID(ctx context.Context, hardwareUID string) (*domainDevice.Device, error) {
	var dbModel models.DeviceModel
	err := r.db.DB.WithContext(ctx).
		Where("hardware_uid = ?", hardwareUID).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainDevice.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return toDeviceEntity(&dbModel), nil
}

func (r *DeviceRepository) Update(ctx context.Context, d *domainDevice.Device) error {
	d.UpdatedAt = time.Now()

	capabilities, err := json.Marshal(d.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}
	deviceConfig, err := json.Marshal(d.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	result := r.db.DB.WithContext(ctx).
		Model(&models.DeviceModel{}).
		Where("id = ?", d.ID).
		Updates(map[string]interface{}{
			"device_name":  d.DeviceName,
			"vendor":       d.Vendor,
			"model":        d.Model,
			"transport":    string(d.Transport),
			"capabilities": capabilities,
			"config":       deviceConfig,
			"updated_at":   d.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainDevice.ErrDeviceNotFound
	}

	return nil
}

func (r *DeviceRepository) UpdateConnectionState(ctx context.Context, deviceID uuid.UUID, state domainDevice.ConnectionState) error {
	result := r.db.DB.WithContext(ctx).
		Model(&models.DeviceModel{}).
		Where("id = ?", deviceID).
		Updates(map[string]interface{}{
			"connection_state": string(state),
			"updated_at":       time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update connection state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainDevice.ErrDeviceNotFound
	}

	return nil
}

func (r *DeviceRepository) UpdateLastSeen(ctx context.Context, deviceID uuid.UUID) error {
	now := time.Now()
	return r.db.DB.WithContext(ctx).
		Model(&models.DeviceModel{}).
		Where("id = ?", deviceID).
		Updates(map[string]interface{}{
			"last_seen_at": now,
			"updated_at":   now,
		}).Error
}

func (r *DeviceRepository) Retire(ctx context.Context, deviceID uuid.UUID) error {
	result := r.db.DB.WithContext(ctx).
		Model(&models.DeviceModel{}).
		Where("id = ? AND retired = false", deviceID).
		Updates(map[string]interface{}{
			"retired":    true,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to retire device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainDevice.ErrDeviceNotFound
	}

	return nil
}

func (r *DeviceRepository) List(ctx context.Context, filter *domainDevice.Filter) ([]*domainDevice.Device, int64, error) {
	var dbModels []models.DeviceModel
	var total int64

	db := r.db.DB.WithContext(ctx).Model(&models.DeviceModel{})

	if filter != nil {
		if !filter.IncludeRetired {
			db = db.Where("retired = false")
		}
		if filter.Transport != nil {
			db = db.Where("transport = ?", string(*filter.Transport))
		}
		if filter.ConnectionState != nil {
			db = db.Where("connection_state = ?", string(*filter.ConnectionState))
		}
		if filter.Search != "" {
			search := "%" + filter.Search + "%"
			db = db.Where("hardware_uid ILIKE ? OR device_name ILIKE ? OR model ILIKE ?", search, search, search)
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count devices: %w", err)
	}

	sortBy := "created_at"
	sortOrder := "ASC"
	page := 1
	pageSize := 20
	if filter != nil {
		if filter.SortBy != "" {
			sortBy = filter.SortBy
		}
		if strings.ToLower(filter.SortOrder) == "desc" {
			sortOrder = "DESC"
		}
		if filter.Page > 0 {
			page = filter.Page
		}
		if filter.PageSize > 0 {
			pageSize = filter.PageSize
		}
	}
	offset := (page - 1) * pageSize

	err := db.Order(fmt.Sprintf("%s %s", sortBy, sortOrder)).
		Limit(pageSize).
		Offset(offset).
		Find(&dbModels).Error

	if err != nil {
		return nil, 0, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]*domainDevice.Device, len(dbModels))
	for i := range dbModels {
		devices[i] = toDeviceEntity(&dbModels[i])
	}

	return devices, total, nil
}

// Helper functions to convert between domain entities and database models

func toDeviceModel(d *domainDevice.Device) (*models.DeviceModel, error) {
	capabilities, err := json.Marshal(d.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to encode capabilities: %w", err)
	}
	deviceConfig, err := json.Marshal(d.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	return &models.DeviceModel{
		ID:              d.ID,
		HardwareUID:     d.HardwareUID,
		DeviceName:      d.DeviceName,
		Vendor:          d.Vendor,
		Model:           d.Model,
		Transport:       string(d.Transport),
		ConnectionState: string(d.ConnectionState),
		Capabilities:    capabilities,
		Config:          deviceConfig,
		Retired:         d.Retired,
		LastSeenAt:      d.LastSeenAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

func toDeviceEntity(m *models.DeviceModel) *domainDevice.Device {
	d := &domainDevice.Device{
		ID:              m.ID,
		HardwareUID:     m.HardwareUID,
		DeviceName:      m.DeviceName,
		Vendor:          m.Vendor,
		Model:           m.Model,
		Transport:       domainDevice.TransportKind(m.Transport),
		ConnectionState: domainDevice.ConnectionState(m.ConnectionState),
		Retired:         m.Retired,
		LastSeenAt:      m.LastSeenAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if len(m.Capabilities) > 0 {
		_ = json.Unmarshal(m.Capabilities, &d.Capabilities)
	}
	if len(m.Config) > 0 {
		_ = json.Unmarshal(m.Config, &d.Config)
	}
	return d
}
