package models

import (
	"time"

	"github.com/google/uuid"
)

// DataPointModel represents the database model for telemetry points.
type DataPointModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key"`
	DeviceID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_points_device_ts"`
	SessionID *uuid.UUID `gorm:"type:uuid;index"`
	Timestamp time.Time  `gorm:"not null;index:idx_points_device_ts"`
	Kind      string     `gorm:"type:varchar(100);not null"`
	Value     float64    `gorm:"not null"`
	Unit      *string    `gorm:"type:varchar(50)"`
	Quality   *float64   `gorm:"type:double precision"`
}

func (DataPointModel) TableName() string {
	return "data_points"
}
