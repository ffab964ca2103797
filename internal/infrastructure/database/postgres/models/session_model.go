package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionModel represents the database model for device sessions.
type SessionModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	DeviceID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	RequesterID   string     `gorm:"type:varchar(255);not null"`
	ReservationID *uuid.UUID `gorm:"type:uuid"`
	Status        string     `gorm:"type:varchar(50);not null;default:'active';index"`
	CloseReason   *string    `gorm:"type:varchar(100)"`
	StartedAt     time.Time  `gorm:"not null"`
	EndedAt       *time.Time `gorm:"type:timestamp"`
	CommandIDs    []byte     `gorm:"type:jsonb"`
	DataPointIDs  []byte     `gorm:"type:jsonb"`
}

func (SessionModel) TableName() string {
	return "sessions"
}
