package services

import (
	"context"
	"fmt"
	"time"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// Detection is the outcome of one detector pass
type Detection struct {
	Alerts []models.Alert
	// StopPump asks the caller to send a pump-off command
	StopPump bool
}

// Detector applies the leak and fault rules to a device's recent readings
type Detector struct {
	telemetryRepo repository.TelemetryRepository
	cfg           config.AnalysisConfig
	logger        *utils.Logger
	now           func() time.Time
}

// NewDetector creates a new detector
func NewDetector(telemetryRepo repository.TelemetryRepository, cfg config.AnalysisConfig, logger *utils.Logger) *Detector {
	return &Detector{
		telemetryRepo: telemetryRepo,
		cfg:           cfg,
		logger:        logger.Named("detector"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run loads the leak window for the reading's device and evaluates every rule
func (d *Detector) Run(ctx context.Context, device *models.Device, reading *models.Telemetry) (Detection, error) {
	window := d.cfg.LeakWindow
	if window < 2 {
		window = 10
	}

	recent, err := d.telemetryRepo.Recent(ctx, device.DeviceID, window)
	if err != nil {
		return Detection{}, fmt.Errorf("failed to load leak window: %w", err)
	}

	detection := d.Evaluate(device, recent, reading)
	if len(detection.Alerts) > 0 {
		d.logger.Info("Rules fired",
			zap.String("device_id", device.DeviceID),
			zap.Int("alerts", len(detection.Alerts)),
			zap.Bool("stop_pump", detection.StopPump))
	}
	return detection, nil
}

// Evaluate is the pure rule set. recent is newest first and usually includes reading.
func (d *Detector) Evaluate(device *models.Device, recent []models.Telemetry, reading *models.Telemetry) Detection {
	var detection Detection
	now := d.now()

	leak := d.levelDropAlert(device, recent, now)
	if leak != nil {
		detection.Alerts = append(detection.Alerts, *leak)
	} else if reading.LeakDetected {
		detection.Alerts = append(detection.Alerts, newAlert(reading, models.AlertLeakDetected, models.SeverityHigh,
			"Device reported a leak", now))
	}

	pumpOn := reading.PumpRunning()

	if pumpOn && reading.PercentFull >= device.OverflowThresholdPercent {
		detection.Alerts = append(detection.Alerts, newAlert(reading, models.AlertOverflow, models.SeverityHigh,
			fmt.Sprintf("Tank at %.1f%% with pump running, stopping pump", reading.PercentFull), now))
		detection.StopPump = true
	}

	if pumpOn && reading.FlowLMin < d.cfg.PumpFaultFlowLMin {
		detection.Alerts = append(detection.Alerts, newAlert(reading, models.AlertPumpFault, models.SeverityHigh,
			"PUMP FAULT: Pump running but no flow detected", now))
	}

	if reading.PercentFull <= device.LowLevelPercent {
		if reading.PercentFull <= d.cfg.LowLevelCriticalPercent {
			detection.Alerts = append(detection.Alerts, newAlert(reading, models.AlertLowLevel, models.SeverityCritical,
				fmt.Sprintf("CRITICAL: Tank only %.1f%% full!", reading.PercentFull), now))
		} else {
			detection.Alerts = append(detection.Alerts, newAlert(reading, models.AlertLowLevel, models.SeverityMedium,
				fmt.Sprintf("WARNING: Tank %.1f%% full - refill soon", reading.PercentFull), now))
		}
	}

	if d.cfg.TDSLimitPPM > 0 && reading.TDSPPM > d.cfg.TDSLimitPPM {
		detection.Alerts = append(detection.Alerts, newAlert(reading, models.AlertWaterQuality, models.SeverityMedium,
			fmt.Sprintf("Water quality alert: TDS %g ppm (above %g ppm threshold)", reading.TDSPPM, d.cfg.TDSLimitPPM), now))
	}

	return detection
}

// levelDropAlert scans adjacent pairs newest first and reports the first drop
// above the device threshold that happened with the pump off on both sides.
func (d *Detector) levelDropAlert(device *models.Device, recent []models.Telemetry, now time.Time) *models.Alert {
	if len(recent) < 2 || device.TankHeightCm <= 0 {
		return nil
	}

	window := d.cfg.LeakWindow
	if window >= 2 && len(recent) > window {
		recent = recent[:window]
	}

	for i := 1; i < len(recent); i++ {
		newer := &recent[i-1]
		older := &recent[i]

		if newer.PumpRunning() || older.PumpRunning() || newer.LevelCm >= older.LevelCm {
			continue
		}

		drop := (older.LevelCm - newer.LevelCm) / device.TankHeightCm * 100
		if drop > device.LeakThresholdPercent {
			alert := newAlert(newer, models.AlertLeakDetected, models.SeverityHigh,
				fmt.Sprintf("Unexpected level drop of %.1f%% detected", drop), now)
			return &alert
		}
	}

	return nil
}

func newAlert(reading *models.Telemetry, alertType models.AlertType, severity models.Severity, message string, at time.Time) models.Alert {
	return models.Alert{
		DeviceID:    reading.DeviceID,
		AlertType:   alertType,
		Message:     message,
		Timestamp:   at,
		LevelCm:     reading.LevelCm,
		PercentFull: reading.PercentFull,
		Severity:    severity,
	}
}
