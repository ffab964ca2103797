package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageModel represents the database model for usage statistics.
type UsageModel struct {
	DeviceID       uuid.UUID  `gorm:"type:uuid;primary_key"`
	SessionCount   int64      `gorm:"not null;default:0"`
	UsageSeconds   float64    `gorm:"not null;default:0"`
	DataPointCount int64      `gorm:"not null;default:0"`
	ErrorCount     int64      `gorm:"not null;default:0"`
	LastUsedAt     *time.Time `gorm:"type:timestamp"`
	Availability   float64    `gorm:"not null;default:1"`
	UpdatedAt      time.Time  `gorm:"not null"`
}

func (UsageModel) TableName() string {
	return "usage_statistics"
}
