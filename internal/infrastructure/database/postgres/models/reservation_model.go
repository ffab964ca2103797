package models

import (
	"time"

	"github.com/google/uuid"
)

// ReservationModel represents the database model for reservations.
type ReservationModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	DeviceID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	RequesterID string     `gorm:"type:varchar(255);not null"`
	StartAt     time.Time  `gorm:"not null;index"`
	EndAt       time.Time  `gorm:"not null;index"`
	Status      string     `gorm:"type:varchar(50);not null;default:'pending';index"`
	SessionID   *uuid.UUID `gorm:"type:uuid"`
	Note        *string    `gorm:"type:text"`
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"not null"`
}

func (ReservationModel) TableName() string {
	return "reservations"
}
