package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domaindevice "lab-device-hub/internal/domain/device"
)

// DeviceRepository is an in-memory implementation of the device
// repository, used by tests and broker-less deployments.
type DeviceRepository struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]*domaindevice.Device
}

func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{devices: make(map[uuid.UUID]*domaindevice.Device)}
}

func (r *DeviceRepository) Create(_ context.Context, d *domaindevice.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.devices {
		if existing.HardwareUID == d.HardwareUID {
			return domaindevice.ErrDeviceAlreadyExists
		}
	}

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.ConnectionState == "" {
		d.ConnectionState = domaindevice.StateOffline
	}

	copied := *d
	r.devices[d.ID] = &copied
	return nil
}

func (r *DeviceRepository) GetByID(_ context.Context, deviceID uuid.UUID) (*domaindevice.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return nil, domaindevice.ErrDeviceNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *DeviceRepository) GetByHardwareUID(_ context.Context, hardwareUID string) (*domaindevice.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.HardwareUID == hardwareUID {
			copied := *d
			return &copied, nil
		}
	}
	return nil, domaindevice.ErrDeviceNotFound
}

func (r *DeviceRepository) Update(_ context.Context, d *domaindevice.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[d.ID]; !ok {
		return domaindevice.ErrDeviceNotFound
	}
	d.UpdatedAt = time.Now()
	copied := *d
	r.devices[d.ID] = &copied
	return nil
}

func (r *DeviceRepository) UpdateConnectionState(_ context.Context, deviceID uuid.UUID, state domaindevice.ConnectionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return domaindevice.ErrDeviceNotFound
	}
	d.ConnectionState = state
	d.UpdatedAt = time.Now()
	return nil
}

func (r *DeviceRepository) UpdateLastSeen(_ context.Context, deviceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return domaindevice.ErrDeviceNotFound
	}
	now := time.Now()
	d.LastSeenAt = &now
	return nil
}

func (r *DeviceRepository) Retire(_ context.Context, deviceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return domaindevice.ErrDeviceNotFound
	}
	d.Retired = true
	d.UpdatedAt = time.Now()
	return nil
}

func (r *DeviceRepository) List(_ context.Context, filter *domaindevice.Filter) ([]*domaindevice.Device, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*domaindevice.Device, 0, len(r.devices))
	for _, d := range r.devices {
		if filter != nil {
			if !filter.IncludeRetired && d.Retired {
				continue
			}
			if filter.Transport != nil && d.Transport != *filter.Transport {
				continue
			}
			if filter.ConnectionState != nil && d.ConnectionState != *filter.ConnectionState {
				continue
			}
			if filter.Search != "" && !matchesSearch(d, filter.Search) {
				continue
			}
		}
		copied := *d
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter != nil && filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		start := (page - 1) * filter.PageSize
		if start >= len(matched) {
			return []*domaindevice.Device{}, total, nil
		}
		end := start + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}

	return matched, total, nil
}

func matchesSearch(d *domaindevice.Device, search string) bool {
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(d.HardwareUID), needle) {
		return true
	}
	if d.DeviceName != nil && strings.Contains(strings.ToLower(*d.DeviceName), needle) {
		return true
	}
	if d.Model != nil && strings.Contains(strings.ToLower(*d.Model), needle) {
		return true
	}
	return false
}
