package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lab-device-hub/internal/domain/telemetry"
)

// TelemetryRepository is an in-memory implementation of the data point
// repository.
type TelemetryRepository struct {
	mu     sync.RWMutex
	points []*telemetry.DataPoint
}

func NewTelemetryRepository() *TelemetryRepository {
	return &TelemetryRepository{points: make([]*telemetry.DataPoint, 0)}
}

func (r *TelemetryRepository) CreateBatch(_ context.Context, points []*telemetry.DataPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range points {
		copied := *p
		r.points = append(r.points, &copied)
	}
	return nil
}

func (r *TelemetryRepository) ListByDevice(_ context.Context, deviceID uuid.UUID, since time.Time, limit int) ([]*telemetry.DataPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(func(p *telemetry.DataPoint) bool {
		return p.DeviceID == deviceID
	}, since, limit), nil
}

func (r *TelemetryRepository) ListBySession(_ context.Context, sessionID uuid.UUID, since time.Time, limit int) ([]*telemetry.DataPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(func(p *telemetry.DataPoint) bool {
		return p.SessionID != nil && *p.SessionID == sessionID
	}, since, limit), nil
}

func (r *TelemetryRepository) CountByDevice(_ context.Context, deviceID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, p := range r.points {
		if p.DeviceID == deviceID {
			count++
		}
	}
	return count, nil
}

func (r *TelemetryRepository) filter(match func(*telemetry.DataPoint) bool, since time.Time, limit int) []*telemetry.DataPoint {
	out := make([]*telemetry.DataPoint, 0)
	for _, p := range r.points {
		if !match(p) {
			continue
		}
		if !since.IsZero() && !p.Timestamp.After(since) {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
