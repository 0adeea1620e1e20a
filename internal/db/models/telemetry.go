package models

import (
	"time"
)

// Pump states as reported by the firmware
const (
	PumpOn  = "ON"
	PumpOff = "OFF"
)

// Telemetry is one sensor sample for one device
type Telemetry struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	DeviceID     string    `gorm:"type:varchar(64);not null;index:idx_telemetry_device_time,priority:1" json:"device_id"`
	Timestamp    time.Time `gorm:"not null;index:idx_telemetry_device_time,priority:2" json:"timestamp"`
	LevelCm      float64   `json:"level_cm"`
	TankHeightCm float64   `json:"tank_height_cm"`
	PercentFull  float64   `json:"percent_full"`
	FlowLMin     float64   `json:"flow_l_min"`
	PumpState    string    `gorm:"type:varchar(3);not null;default:'OFF'" json:"pump_state"`
	TemperatureC float64   `json:"temperature_c"`
	TDSPPM       float64   `gorm:"column:tds_ppm" json:"tds_ppm"`
	BatteryV     *float64  `json:"battery_v,omitempty"`
	LeakDetected bool      `gorm:"default:false" json:"leak_detected"`
}

// TableName overrides the table name for Telemetry
func (Telemetry) TableName() string {
	return "telemetry"
}

// PumpRunning reports whether the pump was on for this sample
func (t *Telemetry) PumpRunning() bool {
	return t.PumpState == PumpOn
}
