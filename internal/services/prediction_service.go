package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// Forecast horizon bounds
const (
	DefaultDaysAhead = 7
	MaxDaysAhead     = 90
)

// DailyPrediction is the forecast for one calendar day
type DailyPrediction struct {
	Date                 string  `json:"date"`
	PredictedConsumption float64 `json:"predicted_consumption"`
}

// PredictionResponse is the forecast returned to the dashboard
type PredictionResponse struct {
	Predictions []DailyPrediction `json:"predictions"`
	Message     string            `json:"message,omitempty"`
}

// PredictionService projects average daily consumption forward as a flat forecast
type PredictionService struct {
	telemetryRepo repository.TelemetryRepository
	deviceRepo    repository.DeviceRepository
	cfg           config.AnalysisConfig
	logger        *utils.Logger
	now           func() time.Time
}

// NewPredictionService creates a new prediction service
func NewPredictionService(repos *repository.RepositoryFactory, cfg config.AnalysisConfig, logger *utils.Logger) *PredictionService {
	return &PredictionService{
		telemetryRepo: repos.Telemetry(),
		deviceRepo:    repos.Device(),
		cfg:           cfg,
		logger:        logger.Named("prediction_service"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Predict returns daysAhead copies of the average daily consumption, starting
// today. A horizon of zero means DefaultDaysAhead.
func (s *PredictionService) Predict(ctx context.Context, deviceID string, daysAhead int) (*PredictionResponse, error) {
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}
	daysAhead = ClampDaysAhead(daysAhead)

	historyDays := s.cfg.PredictionHistoryDays
	if historyDays <= 0 {
		historyDays = 30
	}

	now := s.now()
	history, err := s.telemetryRepo.Since(ctx, deviceID, now.AddDate(0, 0, -historyDays))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	if len(history) < 2 {
		return &PredictionResponse{
			Predictions: []DailyPrediction{},
			Message:     "Insufficient data for predictions",
		}, nil
	}

	device := s.device(ctx, deviceID)
	daily := AverageDailyConsumption(history, device)

	predictions := make([]DailyPrediction, 0, daysAhead)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < daysAhead; i++ {
		predictions = append(predictions, DailyPrediction{
			Date:                 start.AddDate(0, 0, i).Format("2006-01-02"),
			PredictedConsumption: daily,
		})
	}

	s.logger.Debug("Forecast computed",
		zap.String("device_id", deviceID),
		zap.Int("history", len(history)),
		zap.Float64("daily_l", daily))

	return &PredictionResponse{Predictions: predictions}, nil
}

// device loads the tank calibration, falling back to configured defaults
func (s *PredictionService) device(ctx context.Context, deviceID string) *models.Device {
	device, err := s.deviceRepo.Get(ctx, deviceID)
	if err == nil {
		return device
	}
	return &models.Device{
		DeviceID:       deviceID,
		TankHeightCm:   s.cfg.DefaultTankHeightCm,
		TankDiameterCm: s.cfg.DefaultTankDiameterCm,
	}
}

// AverageDailyConsumption groups an oldest-first history by UTC day and averages
// the nonzero per-day consumption figures
func AverageDailyConsumption(history []models.Telemetry, device *models.Device) float64 {
	byDay := make(map[string][]models.Telemetry)
	for _, record := range history {
		day := record.Timestamp.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], record)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	var total float64
	var counted int
	for _, day := range days {
		consumed := WindowConsumption(byDay[day], device)
		if consumed > 0 {
			total += consumed
			counted++
		}
	}

	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// ClampDaysAhead bounds a requested horizon to 1..MaxDaysAhead
func ClampDaysAhead(daysAhead int) int {
	if daysAhead < 1 {
		return 1
	}
	if daysAhead > MaxDaysAhead {
		return MaxDaysAhead
	}
	return daysAhead
}
