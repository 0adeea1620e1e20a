package models

import (
	"math"
	"time"
)

// Device holds the static calibration of one tank.
// Capacity is always derived from the dimensions and never stored.
type Device struct {
	ID                       uint      `gorm:"primarykey" json:"-"`
	DeviceID                 string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"device_id"`
	Name                     string    `gorm:"type:varchar(128)" json:"name"`
	TankHeightCm             float64   `gorm:"not null" json:"tank_height_cm"`
	TankDiameterCm           float64   `gorm:"not null" json:"tank_diameter_cm"`
	LeakThresholdPercent     float64   `gorm:"not null" json:"leak_threshold_percent"`
	OverflowThresholdPercent float64   `gorm:"not null" json:"overflow_threshold_percent"`
	LowLevelPercent          float64   `gorm:"not null" json:"low_level_percent"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// TableName overrides the table name for Device
func (Device) TableName() string {
	return "devices"
}

// CrossSectionCm2 returns the tank's horizontal area in square centimetres
func (d *Device) CrossSectionCm2() float64 {
	radius := d.TankDiameterCm / 2
	return math.Pi * radius * radius
}

// CapacityLiters returns the full tank volume
func (d *Device) CapacityLiters() float64 {
	return d.CrossSectionCm2() * d.TankHeightCm / 1000
}

// LitersForLevelChange converts a level change in cm to litres, ignoring sign
func (d *Device) LitersForLevelChange(deltaCm float64) float64 {
	return math.Abs(deltaCm) * d.CrossSectionCm2() / 1000
}
