package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lab-device-hub/internal/domain/telemetry"
	"lab-device-hub/internal/infrastructure/database/postgres/models"
)

// TelemetryRepository implements the data point repository interface.
type TelemetryRepository struct {
	db *DB
}

func NewTelemetryRepository(db *DB) telemetry.Repository {
	return &TelemetryRepository{db: db}
}

func (r *TelemetryRepository) CreateBatch(ctx context.Context, points []*telemetry.DataPoint) error {
	if len(points) == 0 {
		return nil
	}

	dbModels := make([]models.DataPointModel, len(points))
	for i, p := range points {
		dbModels[i] = models.DataPointModel{
			ID:        p.ID,
			DeviceID:  p.DeviceID,
			SessionID: p.SessionID,
			Timestamp: p.Timestamp,
			Kind:      p.Kind,
			Value:     p.Value,
			Unit:      p.Unit,
			Quality:   p.Quality,
		}
	}

	if err := r.db.DB.WithContext(ctx).CreateInBatches(dbModels, 500).Error; err != nil {
		return fmt.Errorf("failed to create data points: %w", err)
	}
	return nil
}

func (r *TelemetryRepository) ListByDevice(ctx context.Context, deviceID uuid.UUID, since time.Time, limit int) ([]*telemetry.DataPoint, error) {
	return r.list(ctx, "device_id = ?", deviceID, since, limit)
}

func (r *TelemetryRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, since time.Time, limit int) ([]*telemetry.DataPoint, error) {
	return r.list(ctx, "session_id = ?", sessionID, since, limit)
}

func (r *TelemetryRepository) CountByDevice(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.DataPointModel{}).
		Where("device_id = ?", deviceID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count data points: %w", err)
	}
	return count, nil
}

func (r *TelemetryRepository) list(ctx context.Context, cond string, id uuid.UUID, since time.Time, limit int) ([]*telemetry.DataPoint, error) {
	if limit <= 0 {
		limit = 100
	}

	db := r.db.DB.WithContext(ctx).Where(cond, id)
	if !since.IsZero() {
		db = db.Where("timestamp > ?", since)
	}

	var dbModels []models.DataPointModel
	err := db.Order("timestamp ASC").
		Limit(limit).
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list data points: %w", err)
	}

	points := make([]*telemetry.DataPoint, len(dbModels))
	for i := range dbModels {
		m := &dbModels[i]
		points[i] = &telemetry.DataPoint{
			ID:        m.ID,
			DeviceID:  m.DeviceID,
			SessionID: m.SessionID,
			Timestamp: m.Timestamp,
			Kind:      m.Kind,
			Value:     m.Value,
			Unit:      m.Unit,
			Quality:   m.Quality,
		}
	}
	return points, nil
}
