package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainCommand "lab-device-hub/internal/domain/command"
	"lab-device-hub/internal/infrastructure/database/postgres/models"
	apperrors "lab-device-hub/pkg/errors"
)

// CommandRepository implements the command repository interface.
type CommandRepository struct {
	db *DB
}

func NewCommandRepository(db *DB) domainCommand.Repository {
	return &CommandRepository{db: db}
}

func (r *CommandRepository) Create(ctx context.Context, cmd *domainCommand.Command) error {
	dbModel, err := toCommandModel(cmd)
	if err != nil {
		return err
	}
	if err := r.db.DB.WithContext(ctx).Create(dbModel).Error; err != nil {
		return fmt.Errorf("failed to create command: %w", err)
	}
	return nil
}

func (r *CommandRepository) GetByID(ctx context.Context, commandID uuid.UUID) (*domainCommand.Command, error) {
	var dbModel models.CommandModel
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", commandID).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrCommandNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get command: %w", err)
	}

	return toCommandEntity(&dbModel), nil
}

func (r *CommandRepository) Update(ctx context.Context, cmd *domainCommand.Command) error {
	dbModel, err := toCommandModel(cmd)
	if err != nil {
		return err
	}

	result := r.db.DB.WithContext(ctx).
		Model(&models.CommandModel{}).
		Where("id = ?", cmd.ID).
		Updates(map[string]interface{}{
			"session_id":   dbModel.SessionID,
			"status":       dbModel.Status,
			"result":       dbModel.Result,
			"error_detail": dbModel.ErrorDetail,
			"completed_at": dbModel.CompletedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update command: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrCommandNotFound
	}

	return nil
}

func (r *CommandRepository) ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]*domainCommand.Command, error) {
	if limit <= 0 {
		limit = 50
	}

	var dbModels []models.CommandModel
	err := r.db.DB.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}

	// Newest-first from the query, returned oldest-first.
	commands := make([]*domainCommand.Command, len(dbModels))
	for i := range dbModels {
		commands[len(dbModels)-1-i] = toCommandEntity(&dbModels[i])
	}
	return commands, nil
}

func (r *CommandRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domainCommand.Command, error) {
	var dbModels []models.CommandModel
	err := r.db.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("submitted_at ASC").
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list session commands: %w", err)
	}

	commands := make([]*domainCommand.Command, len(dbModels))
	for i := range dbModels {
		commands[i] = toCommandEntity(&dbModels[i])
	}
	return commands, nil
}

func toCommandModel(cmd *domainCommand.Command) (*models.CommandModel, error) {
	parameters, err := json.Marshal(cmd.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	result, err := json.Marshal(cmd.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	return &models.CommandModel{
		ID:          cmd.ID,
		DeviceID:    cmd.DeviceID,
		SessionID:   cmd.SessionID,
		RequesterID: cmd.RequesterID,
		Operation:   cmd.Operation,
		Parameters:  parameters,
		Status:      string(cmd.Status),
		Result:      result,
		ErrorDetail: cmd.ErrorDetail,
		SubmittedAt: cmd.SubmittedAt,
		CompletedAt: cmd.CompletedAt,
	}, nil
}

func toCommandEntity(m *models.CommandModel) *domainCommand.Command {
	cmd := &domainCommand.Command{
		ID:          m.ID,
		DeviceID:    m.DeviceID,
		SessionID:   m.SessionID,
		RequesterID: m.RequesterID,
		Operation:   m.Operation,
		Status:      domainCommand.Status(m.Status),
		ErrorDetail: m.ErrorDetail,
		SubmittedAt: m.SubmittedAt,
		CompletedAt: m.CompletedAt,
	}
	if len(m.Parameters) > 0 {
		_ = json.Unmarshal(m.Parameters, &cmd.Parameters)
	}
	if len(m.Result) > 0 {
		_ = json.Unmarshal(m.Result, &cmd.Result)
	}
	return cmd
}
