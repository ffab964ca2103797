package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainSession "lab-device-hub/internal/domain/session"
	"lab-device-hub/internal/infrastructure/database/postgres/models"
)

// SessionRepository implements the session repository interface.
type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) domainSession.Repository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domainSession.Session) error {
	dbModel, err := toSessionModel(s)
	if err != nil {
		return err
	}
	if err := r.db.DB.WithContext(ctx).Create(dbModel).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*domainSession.Session, error) {
	var dbModel models.SessionModel
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainSession.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return toSessionEntity(&dbModel), nil
}

func (r *SessionRepository) Update(ctx context.Context, s *domainSession.Session) error {
	dbModel, err := toSessionModel(s)
	if err != nil {
		return err
	}

	result := r.db.DB.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"status":         dbModel.Status,
			"close_reason":   dbModel.CloseReason,
			"ended_at":       dbModel.EndedAt,
			"command_ids":    dbModel.CommandIDs,
			"data_point_ids": dbModel.DataPointIDs,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainSession.ErrSessionNotFound
	}

	return nil
}

func (r *SessionRepository) GetActiveByDevice(ctx context.Context, deviceID uuid.UUID) (*domainSession.Session, error) {
	var dbModel models.SessionModel
	err := r.db.DB.WithContext(ctx).
		Where("device_id = ? AND status = ?", deviceID, string(domainSession.StatusActive)).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domainSession.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	return toSessionEntity(&dbModel), nil
}

func (r *SessionRepository) ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]*domainSession.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	var dbModels []models.SessionModel
	err := r.db.DB.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("started_at DESC").
		Limit(limit).
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*domainSession.Session, len(dbModels))
	for i := range dbModels {
		sessions[len(dbModels)-1-i] = toSessionEntity(&dbModels[i])
	}
	return sessions, nil
}

func (r *SessionRepository) CountByDevice(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("device_id = ?", deviceID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func toSessionModel(s *domainSession.Session) (*models.SessionModel, error) {
	commandIDs, err := json.Marshal(s.CommandIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command ids: %w", err)
	}
	dataPointIDs, err := json.Marshal(s.DataPointIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data point ids: %w", err)
	}

	return &models.SessionModel{
		ID:            s.ID,
		DeviceID:      s.DeviceID,
		RequesterID:   s.RequesterID,
		ReservationID: s.ReservationID,
		Status:        string(s.Status),
		CloseReason:   s.CloseReason,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		CommandIDs:    commandIDs,
		DataPointIDs:  dataPointIDs,
	}, nil
}

func toSessionEntity(m *models.SessionModel) *domainSession.Session {
	s := &domainSession.Session{
		ID:            m.ID,
		DeviceID:      m.DeviceID,
		RequesterID:   m.RequesterID,
		ReservationID: m.ReservationID,
		Status:        domainSession.Status(m.Status),
		CloseReason:   m.CloseReason,
		StartedAt:     m.StartedAt,
		EndedAt:       m.EndedAt,
	}
	if len(m.CommandIDs) > 0 {
		_ = json.Unmarshal(m.CommandIDs, &s.CommandIDs)
	}
	if len(m.DataPointIDs) > 0 {
		_ = json.Unmarshal(m.DataPointIDs, &s.DataPointIDs)
	}
	return s
}
