package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// ConsumptionWindow is the look-back used for the weekly figure
const ConsumptionWindow = 7 * 24 * time.Hour

// ConsumptionReport holds the derived fields of a device status
type ConsumptionReport struct {
	Today          float64
	Week           float64
	DaysUntilEmpty *float64
}

// Apply copies the report into a status snapshot
func (r ConsumptionReport) Apply(status models.DeviceStatus) models.DeviceStatus {
	status.ConsumptionToday = r.Today
	status.ConsumptionWeek = r.Week
	status.DaysUntilEmpty = r.DaysUntilEmpty
	return status
}

// WindowConsumption returns the litres implied by the net level change between
// the first and last reading of an oldest-first window. Any decrease counts.
func WindowConsumption(records []models.Telemetry, device *models.Device) float64 {
	if len(records) < 2 {
		return 0
	}
	delta := records[0].LevelCm - records[len(records)-1].LevelCm
	return device.LitersForLevelChange(delta)
}

// DaysUntilEmpty projects how long the remaining water lasts at the weekly rate.
// It returns nil when there is no usable consumption rate.
func DaysUntilEmpty(percentFull, capacityLiters, weekLiters float64) *float64 {
	if percentFull <= 0 {
		zero := 0.0
		return &zero
	}

	daily := weekLiters / 7
	if daily <= 0 || math.IsNaN(daily) || math.IsInf(daily, 0) {
		return nil
	}

	days := math.Max(0, percentFull/100*capacityLiters/daily)
	return &days
}

// TodayRecords keeps readings that fall on now's UTC calendar day
func TodayRecords(records []models.Telemetry, now time.Time) []models.Telemetry {
	year, month, day := now.UTC().Date()
	today := make([]models.Telemetry, 0, len(records))
	for _, record := range records {
		y, m, d := record.Timestamp.UTC().Date()
		if y == year && m == month && d == day {
			today = append(today, record)
		}
	}
	return today
}

// ConsumptionAnalyzer derives consumption figures from stored telemetry
type ConsumptionAnalyzer struct {
	telemetryRepo repository.TelemetryRepository
	logger        *utils.Logger
	now           func() time.Time
}

// NewConsumptionAnalyzer creates a new consumption analyzer
func NewConsumptionAnalyzer(telemetryRepo repository.TelemetryRepository, logger *utils.Logger) *ConsumptionAnalyzer {
	return &ConsumptionAnalyzer{
		telemetryRepo: telemetryRepo,
		logger:        logger.Named("consumption_analyzer"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Analyze computes today's and this week's consumption and the days-until-empty estimate
func (a *ConsumptionAnalyzer) Analyze(ctx context.Context, device *models.Device, percentFull float64) (ConsumptionReport, error) {
	now := a.now()

	week, err := a.telemetryRepo.Since(ctx, device.DeviceID, now.Add(-ConsumptionWindow))
	if err != nil {
		return ConsumptionReport{}, fmt.Errorf("failed to load weekly telemetry: %w", err)
	}

	report := ConsumptionReport{
		Today: WindowConsumption(TodayRecords(week, now), device),
		Week:  WindowConsumption(week, device),
	}
	report.DaysUntilEmpty = DaysUntilEmpty(percentFull, device.CapacityLiters(), report.Week)

	a.logger.Debug("Consumption analyzed",
		zap.String("device_id", device.DeviceID),
		zap.Int("records", len(week)),
		zap.Float64("today_l", report.Today),
		zap.Float64("week_l", report.Week))

	return report, nil
}
