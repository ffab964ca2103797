package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	domainusage "lab-device-hub/internal/domain/usage"
)

// UsageRepository is an in-memory implementation of the usage
// statistics repository.
type UsageRepository struct {
	mu    sync.RWMutex
	stats map[uuid.UUID]*domainusage.Statistics
}

func NewUsageRepository() *UsageRepository {
	return &UsageRepository{stats: make(map[uuid.UUID]*domainusage.Statistics)}
}

func (r *UsageRepository) Upsert(_ context.Context, stats *domainusage.Statistics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *stats
	r.stats[stats.DeviceID] = &copied
	return nil
}

func (r *UsageRepository) GetByDevice(_ context.Context, deviceID uuid.UUID) (*domainusage.Statistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, ok := r.stats[deviceID]
	if !ok {
		return nil, domainusage.ErrStatisticsNotFound
	}
	copied := *stats
	return &copied, nil
}
