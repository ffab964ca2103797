package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceModel represents the database model for devices.
type DeviceModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	HardwareUID     string     `gorm:"type:varchar(255);not null;uniqueIndex"`
	DeviceName      *string    `gorm:"type:varchar(255)"`
	Vendor          *string    `gorm:"type:varchar(255)"`
	Model           *string    `gorm:"type:varchar(255)"`
	Transport       string     `gorm:"type:varchar(50);not null"`
	ConnectionState string     `gorm:"type:varchar(50);not null;default:'offline'"`
	Capabilities    []byte     `gorm:"type:jsonb"`
	Config          []byte     `gorm:"type:jsonb"`
	Retired         bool       `gorm:"not null;default:false"`
	LastSeenAt      *time.Time `gorm:"type:timestamp"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (DeviceModel) TableName() string {
	return "devices"
}
