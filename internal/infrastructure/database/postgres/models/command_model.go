package models

import (
	"time"

	"github.com/google/uuid"
)

// CommandModel represents the database model for command records.
type CommandModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	DeviceID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	SessionID   *uuid.UUID `gorm:"type:uuid;index"`
	RequesterID string     `gorm:"type:varchar(255);not null"`
	Operation   string     `gorm:"type:varchar(255);not null"`
	Parameters  []byte     `gorm:"type:jsonb"`
	Status      string     `gorm:"type:varchar(50);not null;default:'pending'"`
	Result      []byte     `gorm:"type:jsonb"`
	ErrorDetail *string    `gorm:"type:text"`
	SubmittedAt time.Time  `gorm:"not null;index"`
	CompletedAt *time.Time `gorm:"type:timestamp"`
}

func (CommandModel) TableName() string {
	return "commands"
}
