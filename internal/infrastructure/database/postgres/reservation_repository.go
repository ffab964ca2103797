package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainReservation "lab-device-hub/internal/domain/reservation"
	"lab-device-hub/internal/infrastructure/database/postgres/models"
)

// ReservationRepository implements the reservation repository interface.
type ReservationRepository struct {
	db *DB
}

func NewReservationRepository(db *DB) domainReservation.Repository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, res *domainReservation.Reservation) error {
	dbModel := toReservationModel(res)
	if err := r.db.DB.WithContext(ctx).Create(dbModel).Error; err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, reservationID uuid.UUID) (*domainReservation.Reservation, error) {
	var dbModel models.ReservationModel
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", reservationID).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainReservation.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	return toReservationEntity(&dbModel), nil
}

func (r *ReservationRepository) Update(ctx context.Context, res *domainReservation.Reservation) error {
	res.UpdatedAt = time.Now()

	result := r.db.DB.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Where("id = ?", res.ID).
		Updates(map[string]interface{}{
			"status":     string(res.Status),
			"session_id": res.SessionID,
			"note":       res.Note,
			"updated_at": res.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update reservation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainReservation.ErrReservationNotFound
	}

	return nil
}

func (r *ReservationRepository) ListByDevice(ctx context.Context, deviceID uuid.UUID, statuses []domainReservation.Status) ([]*domainReservation.Reservation, error) {
	db := r.db.DB.WithContext(ctx).
		Where("device_id = ?", deviceID)

	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, s := range statuses {
			raw[i] = string(s)
		}
		db = db.Where("status IN ?", raw)
	}

	var dbModels []models.ReservationModel
	if err := db.Order("start_at ASC").Find(&dbModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}

	return toReservationEntities(dbModels), nil
}

func (r *ReservationRepository) ListApprovedOverlapping(ctx context.Context, deviceID uuid.UUID, start, end time.Time) ([]*domainReservation.Reservation, error) {
	var dbModels []models.ReservationModel
	// Half-open windows: [start_at, end_at) intersects [start, end).
	err := r.db.DB.WithContext(ctx).
		Where("device_id = ? AND status = ? AND start_at < ? AND end_at > ?",
			deviceID, string(domainReservation.StatusApproved), end, start).
		Order("start_at ASC").
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overlapping reservations: %w", err)
	}

	return toReservationEntities(dbModels), nil
}

func (r *ReservationRepository) ListDue(ctx context.Context, now time.Time) ([]*domainReservation.Reservation, error) {
	var dbModels []models.ReservationModel
	err := r.db.DB.WithContext(ctx).
		Where("status = ? AND session_id IS NULL AND start_at <= ? AND end_at > ?",
			string(domainReservation.StatusApproved), now, now).
		Order("start_at ASC").
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due reservations: %w", err)
	}

	return toReservationEntities(dbModels), nil
}

func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time) ([]*domainReservation.Reservation, error) {
	var dbModels []models.ReservationModel
	err := r.db.DB.WithContext(ctx).
		Where("status = ? AND end_at <= ?",
			string(domainReservation.StatusApproved), now).
		Order("start_at ASC").
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	return toReservationEntities(dbModels), nil
}

func (r *ReservationRepository) CountActiveByDevice(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Where("device_id = ? AND status IN ?", deviceID, []string{
			string(domainReservation.StatusPending),
			string(domainReservation.StatusApproved),
		}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return count, nil
}

func toReservationModel(res *domainReservation.Reservation) *models.ReservationModel {
	return &models.ReservationModel{
		ID:          res.ID,
		DeviceID:    res.DeviceID,
		RequesterID: res.RequesterID,
		StartAt:     res.StartAt,
		EndAt:       res.EndAt,
		Status:      string(res.Status),
		SessionID:   res.SessionID,
		Note:        res.Note,
		CreatedAt:   res.CreatedAt,
		UpdatedAt:   res.UpdatedAt,
	}
}

func toReservationEntity(m *models.ReservationModel) *domainReservation.Reservation {
	return &domainReservation.Reservation{
		ID:          m.ID,
		DeviceID:    m.DeviceID,
		RequesterID: m.RequesterID,
		StartAt:     m.StartAt,
		EndAt:       m.EndAt,
		Status:      domainReservation.Status(m.Status),
		SessionID:   m.SessionID,
		Note:        m.Note,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toReservationEntities(dbModels []models.ReservationModel) []*domainReservation.Reservation {
	out := make([]*domainReservation.Reservation, len(dbModels))
	for i := range dbModels {
		out[i] = toReservationEntity(&dbModels[i])
	}
	return out
}
