package models

import (
	"time"
)

// DeviceStatus is the latest-value snapshot of a device plus derived analysis.
// It is replaced as a whole value and is not persisted in the database.
type DeviceStatus struct {
	DeviceID         string    `json:"device_id"`
	CurrentLevel     float64   `json:"current_level"`
	PercentFull      float64   `json:"percent_full"`
	FlowRate         float64   `json:"flow_rate"`
	PumpState        bool      `json:"pump_state"`
	Temperature      float64   `json:"temperature"`
	TDS              float64   `json:"tds"`
	LastUpdate       time.Time `json:"last_update"`
	DaysUntilEmpty   *float64  `json:"days_until_empty"`
	ConsumptionToday float64   `json:"consumption_today"`
	ConsumptionWeek  float64   `json:"consumption_week"`
}

// DefaultDeviceStatus is served for devices that have not reported yet
func DefaultDeviceStatus(deviceID string, now time.Time) DeviceStatus {
	return DeviceStatus{
		DeviceID:    deviceID,
		Temperature: 25,
		LastUpdate:  now,
	}
}

// StatusFromTelemetry builds a snapshot from a reading, without derived fields
func StatusFromTelemetry(t *Telemetry) DeviceStatus {
	return DeviceStatus{
		DeviceID:     t.DeviceID,
		CurrentLevel: t.LevelCm,
		PercentFull:  t.PercentFull,
		FlowRate:     t.FlowLMin,
		PumpState:    t.PumpRunning(),
		Temperature:  t.TemperatureC,
		TDS:          t.TDSPPM,
		LastUpdate:   t.Timestamp,
	}
}
