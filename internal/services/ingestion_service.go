package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// TelemetrySchema is the registered name of the telemetry payload schema
const TelemetrySchema = "telemetry"

// TelemetryMessage is one reading as published by a device
type TelemetryMessage struct {
	DeviceID     string   `json:"device_id"`
	TS           float64  `json:"ts,omitempty"`
	LevelCm      float64  `json:"level_cm"`
	TankHeightCm float64  `json:"tank_height_cm"`
	PercentFull  *float64 `json:"percent_full,omitempty"`
	FlowLMin     float64  `json:"flow_l_min"`
	PumpState    string   `json:"pump_state"`
	TemperatureC float64  `json:"temperature_c"`
	TDSPPM       float64  `json:"tds_ppm"`
	BatteryV     *float64 `json:"battery_v,omitempty"`
	LeakDetected bool     `json:"leak_detected,omitempty"`
}

// TelemetryPublisher forwards accepted readings to an event stream
type TelemetryPublisher interface {
	ProduceTelemetry(deviceID string, payload interface{}) error
}

// PumpStopper turns a device's pump off
type PumpStopper interface {
	StopPump(ctx context.Context, deviceID, reason string) error
}

// IngestionService turns raw readings into stored records, status, and alerts
type IngestionService struct {
	telemetryRepo repository.TelemetryRepository
	deviceRepo    repository.DeviceRepository
	statusStore   StatusStore
	analyzer      *ConsumptionAnalyzer
	detector      *Detector
	alerts        *AlertService
	pump          PumpStopper
	feed          *NotificationService
	stream        TelemetryPublisher
	validator     *utils.JSONSchemaValidator
	defaults      config.AnalysisConfig
	logger        *utils.Logger
	now           func() time.Time
}

// IngestionDeps groups the collaborators of the ingestion service
type IngestionDeps struct {
	Repos       *repository.RepositoryFactory
	StatusStore StatusStore
	Analyzer    *ConsumptionAnalyzer
	Detector    *Detector
	Alerts      *AlertService
	Pump        PumpStopper
	Feed        *NotificationService
	Stream      TelemetryPublisher
}

// NewIngestionService creates the ingestion pipeline and registers the telemetry schema
func NewIngestionService(deps IngestionDeps, cfg config.AnalysisConfig, logger *utils.Logger) (*IngestionService, error) {
	validator := utils.NewJSONSchemaValidator()
	schema, err := TelemetryJSONSchema()
	if err != nil {
		return nil, err
	}
	if err := validator.LoadSchema(TelemetrySchema, schema); err != nil {
		return nil, err
	}

	return &IngestionService{
		telemetryRepo: deps.Repos.Telemetry(),
		deviceRepo:    deps.Repos.Device(),
		statusStore:   deps.StatusStore,
		analyzer:      deps.Analyzer,
		detector:      deps.Detector,
		alerts:        deps.Alerts,
		pump:          deps.Pump,
		feed:          deps.Feed,
		stream:        deps.Stream,
		validator:     validator,
		defaults:      cfg,
		logger:        logger.Named("ingestion_service"),
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// TelemetryJSONSchema builds the schema raw payloads are checked against
func TelemetryJSONSchema() (string, error) {
	zero := 0.0
	return utils.NewJSONSchemaBuilder().
		SetTitle("SmartAqua telemetry").
		AddStringProperty("device_id", false).
		AddNumberProperty("ts", false, &zero).
		AddNumberProperty("level_cm", true, &zero).
		AddNumberProperty("tank_height_cm", false, &zero).
		AddNumberProperty("percent_full", false, nil).
		AddNumberProperty("flow_l_min", false, &zero).
		AddStringProperty("pump_state", true, "ON", "OFF", "on", "off").
		AddNumberProperty("temperature_c", false, nil).
		AddNumberProperty("tds_ppm", false, &zero).
		AddNumberProperty("battery_v", false, &zero).
		AddBooleanProperty("leak_detected", false).
		Build()
}

// HandleMessage is the transport entry point. Errors are logged, never returned.
func (s *IngestionService) HandleMessage(ctx context.Context, deviceID string, payload []byte) {
	log := s.logger.ForDevice(deviceID)

	if err := s.validator.Validate(TelemetrySchema, payload); err != nil {
		log.Warn("Dropping invalid telemetry", zap.Error(err))
		return
	}

	var msg TelemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Warn("Dropping undecodable telemetry", zap.Error(err))
		return
	}
	if deviceID != "" {
		msg.DeviceID = deviceID
	}

	if _, err := s.Ingest(ctx, &msg); err != nil {
		log.Warn("Telemetry rejected", zap.Error(err))
	}
}

// Ingest runs one reading through the pipeline. Only validation failures
// are returned; later steps log and carry on.
func (s *IngestionService) Ingest(ctx context.Context, msg *TelemetryMessage) (*models.DeviceStatus, error) {
	receivedAt := s.now()

	if err := validateTelemetry(msg); err != nil {
		return nil, err
	}

	log := s.logger.ForDevice(msg.DeviceID)

	device, err := s.deviceRepo.GetOrCreate(ctx, s.defaultDevice(msg.DeviceID))
	if err != nil {
		log.Error("Failed to load device, using defaults", zap.Error(err))
		device = s.defaultDevice(msg.DeviceID)
	}

	record := toRecord(msg, device, receivedAt)

	if err := s.telemetryRepo.Insert(ctx, record); err != nil {
		log.Error("Failed to store telemetry", zap.Error(err))
	}

	if cached, ok := s.newerStatus(ctx, log, record); ok {
		log.Info("Late reading stored, keeping newer status",
			zap.Time("reading_ts", record.Timestamp),
			zap.Time("last_update", cached.LastUpdate))
		s.forward(log, record)
		return &cached, nil
	}

	status := models.StatusFromTelemetry(record)
	s.setStatus(ctx, log, status)

	if s.analyzer != nil {
		report, err := s.analyzer.Analyze(ctx, device, record.PercentFull)
		if err != nil {
			log.Error("Consumption analysis failed", zap.Error(err))
		} else {
			status = report.Apply(status)
			s.setStatus(ctx, log, status)
		}
	}

	if s.detector != nil {
		s.detect(ctx, log, device, record)
	}

	if s.feed != nil {
		s.feed.PublishStatus(status)
	}
	s.forward(log, record)

	return &status, nil
}

// newerStatus returns the cached status when it is newer than the reading
func (s *IngestionService) newerStatus(ctx context.Context, log *utils.Logger, record *models.Telemetry) (models.DeviceStatus, bool) {
	cached, ok, err := s.statusStore.Get(ctx, record.DeviceID)
	if err != nil {
		log.Warn("Failed to read cached status", zap.Error(err))
		return models.DeviceStatus{}, false
	}
	if !ok || !record.Timestamp.Before(cached.LastUpdate) {
		return models.DeviceStatus{}, false
	}
	return cached, true
}

func (s *IngestionService) forward(log *utils.Logger, record *models.Telemetry) {
	if s.stream == nil {
		return
	}
	if err := s.stream.ProduceTelemetry(record.DeviceID, record); err != nil {
		log.Warn("Failed to forward telemetry to stream", zap.Error(err))
	}
}

func (s *IngestionService) detect(ctx context.Context, log *utils.Logger, device *models.Device, record *models.Telemetry) {
	detection, err := s.detector.Run(ctx, device, record)
	if err != nil {
		log.Error("Detection failed", zap.Error(err))
		return
	}

	for i := range detection.Alerts {
		if s.alerts == nil {
			break
		}
		if _, err := s.alerts.Raise(ctx, &detection.Alerts[i]); err != nil {
			log.Error("Failed to raise alert",
				zap.String("alert_type", string(detection.Alerts[i].AlertType)),
				zap.Error(err))
		}
	}

	if detection.StopPump && s.pump != nil {
		if err := s.pump.StopPump(ctx, device.DeviceID, "overflow"); err != nil {
			log.Error("Failed to stop pump", zap.Error(err))
		}
	}
}

func (s *IngestionService) setStatus(ctx context.Context, log *utils.Logger, status models.DeviceStatus) {
	if err := s.statusStore.Set(ctx, status); err != nil {
		log.Error("Failed to update status", zap.Error(err))
	}
}

func (s *IngestionService) defaultDevice(deviceID string) *models.Device {
	return DefaultDevice(deviceID, s.defaults)
}

func validateTelemetry(msg *TelemetryMessage) error {
	msg.DeviceID = strings.TrimSpace(msg.DeviceID)
	if msg.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", utils.ErrValidation)
	}

	checks := []struct {
		name        string
		value       float64
		nonNegative bool
	}{
		{"ts", msg.TS, true},
		{"level_cm", msg.LevelCm, true},
		{"tank_height_cm", msg.TankHeightCm, true},
		{"flow_l_min", msg.FlowLMin, true},
		{"temperature_c", msg.TemperatureC, false},
		{"tds_ppm", msg.TDSPPM, true},
	}
	if msg.PercentFull != nil {
		checks = append(checks, struct {
			name        string
			value       float64
			nonNegative bool
		}{"percent_full", *msg.PercentFull, true})
	}

	for _, check := range checks {
		if math.IsNaN(check.value) || math.IsInf(check.value, 0) {
			return fmt.Errorf("%w: %s is not a finite number", utils.ErrValidation, check.name)
		}
		if check.nonNegative && check.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", utils.ErrValidation, check.name)
		}
	}

	if msg.PercentFull != nil && *msg.PercentFull > 100 {
		return fmt.Errorf("%w: percent_full must be between 0 and 100", utils.ErrValidation)
	}

	switch strings.ToUpper(strings.TrimSpace(msg.PumpState)) {
	case models.PumpOn:
		msg.PumpState = models.PumpOn
	case models.PumpOff, "":
		msg.PumpState = models.PumpOff
	default:
		return fmt.Errorf("%w: pump_state must be ON or OFF", utils.ErrValidation)
	}

	return nil
}

func toRecord(msg *TelemetryMessage, device *models.Device, receivedAt time.Time) *models.Telemetry {
	timestamp := receivedAt
	if msg.TS > 0 {
		timestamp = epochSeconds(msg.TS)
	}

	height := msg.TankHeightCm
	if height <= 0 {
		height = device.TankHeightCm
	}

	var percent float64
	switch {
	case msg.PercentFull != nil:
		percent = *msg.PercentFull
	case height > 0:
		// a level above the tank height reads as full
		percent = math.Min(msg.LevelCm/height*100, 100)
	}

	return &models.Telemetry{
		DeviceID:     msg.DeviceID,
		Timestamp:    timestamp,
		LevelCm:      msg.LevelCm,
		TankHeightCm: height,
		PercentFull:  percent,
		FlowLMin:     msg.FlowLMin,
		PumpState:    msg.PumpState,
		TemperatureC: msg.TemperatureC,
		TDSPPM:       msg.TDSPPM,
		BatteryV:     msg.BatteryV,
		LeakDetected: msg.LeakDetected,
	}
}
