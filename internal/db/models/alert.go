package models

import (
	"time"
)

// AlertType identifies the rule or source that raised an alert
type AlertType string

const (
	AlertLeakDetected AlertType = "LEAK_DETECTED"
	AlertOverflow     AlertType = "OVERFLOW"
	AlertPumpFault    AlertType = "PUMP_FAULT"
	AlertLowLevel     AlertType = "LOW_LEVEL"
	AlertWaterQuality AlertType = "WATER_QUALITY"
	AlertDevice       AlertType = "DEVICE_ALERT"
)

// Severity grades an alert for operators
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is one detected anomaly for a device
type Alert struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	DeviceID    string     `gorm:"type:varchar(64);not null;index:idx_alerts_device_time,priority:1" json:"device_id"`
	AlertType   AlertType  `gorm:"type:varchar(32);not null" json:"alert_type"`
	Message     string     `gorm:"not null" json:"message"`
	Timestamp   time.Time  `gorm:"not null;index:idx_alerts_device_time,priority:2" json:"timestamp"`
	LevelCm     float64    `json:"level_cm"`
	PercentFull float64    `json:"percent_full"`
	Resolved    bool       `gorm:"not null;default:false;index" json:"resolved"`
	Severity    Severity   `gorm:"type:varchar(16);not null;default:'medium'" json:"severity"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  string     `gorm:"type:varchar(64)" json:"resolved_by,omitempty"`
}

// TableName overrides the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}
