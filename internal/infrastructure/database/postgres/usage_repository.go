package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainUsage "lab-device-hub/internal/domain/usage"
	"lab-device-hub/internal/infrastructure/database/postgres/models"
)

// UsageRepository implements the usage statistics repository interface.
type UsageRepository struct {
	db *DB
}

func NewUsageRepository(db *DB) domainUsage.Repository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Upsert(ctx context.Context, stats *domainUsage.Statistics) error {
	dbModel := &models.UsageModel{
		DeviceID:       stats.DeviceID,
		SessionCount:   stats.SessionCount,
		UsageSeconds:   stats.UsageSeconds,
		DataPointCount: stats.DataPointCount,
		ErrorCount:     stats.ErrorCount,
		LastUsedAt:     stats.LastUsedAt,
		Availability:   stats.Availability,
		UpdatedAt:      stats.UpdatedAt,
	}

	err := r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			UpdateAll: true,
		}).
		Create(dbModel).Error
	if err != nil {
		return fmt.Errorf("failed to upsert usage statistics: %w", err)
	}
	return nil
}

func (r *UsageRepository) GetByDevice(ctx context.Context, deviceID uuid.UUID) (*domainUsage.Statistics, error) {
	var dbModel models.UsageModel
	err := r.db.DB.WithContext(ctx).
		Where("device_id = ?", deviceID).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainUsage.ErrStatisticsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage statistics: %w", err)
	}

	return &domainUsage.Statistics{
		DeviceID:       dbModel.DeviceID,
		SessionCount:   dbModel.SessionCount,
		UsageSeconds:   dbModel.UsageSeconds,
		DataPointCount: dbModel.DataPointCount,
		ErrorCount:     dbModel.ErrorCount,
		LastUsedAt:     dbModel.LastUsedAt,
		Availability:   dbModel.Availability,
		UpdatedAt:      dbModel.UpdatedAt,
	}, nil
}
