package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// Telemetry window bounds for the dashboard history view
const (
	DefaultTelemetryHours = 24
	TelemetryLimit        = 100
)

// DeviceListResponse lists every known device id
type DeviceListResponse struct {
	Devices      []string `json:"devices"`
	TotalDevices int      `json:"total_devices"`
}

// DeviceConfigRequest updates the tank calibration; nil fields are unchanged
type DeviceConfigRequest struct {
	Name                     *string  `json:"name"`
	TankHeightCm             *float64 `json:"tank_height_cm" binding:"omitempty,gt=0"`
	TankDiameterCm           *float64 `json:"tank_diameter_cm" binding:"omitempty,gt=0"`
	LeakThresholdPercent     *float64 `json:"leak_threshold_percent" binding:"omitempty,gte=0,lte=100"`
	OverflowThresholdPercent *float64 `json:"overflow_threshold_percent" binding:"omitempty,gt=0,lte=100"`
	LowLevelPercent          *float64 `json:"low_level_percent" binding:"omitempty,gte=0,lte=100"`
}

// DeviceConfigResponse is a calibration with its derived capacity
type DeviceConfigResponse struct {
	*models.Device
	CapacityLiters float64 `json:"capacity_liters"`
}

// DeviceService serves the read side of the dashboard and tank calibration
type DeviceService struct {
	deviceRepo    repository.DeviceRepository
	telemetryRepo repository.TelemetryRepository
	statusStore   StatusStore
	defaults      config.AnalysisConfig
	logger        *utils.Logger
	now           func() time.Time
}

// NewDeviceService creates a new device service
func NewDeviceService(repos *repository.RepositoryFactory, statusStore StatusStore, cfg config.AnalysisConfig, logger *utils.Logger) *DeviceService {
	return &DeviceService{
		deviceRepo:    repos.Device(),
		telemetryRepo: repos.Telemetry(),
		statusStore:   statusStore,
		defaults:      cfg,
		logger:        logger.Named("device_service"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ListDevices merges registered devices with devices that have a cached status
func (s *DeviceService) ListDevices(ctx context.Context) (*DeviceListResponse, error) {
	seen := make(map[string]bool)

	cached, err := s.statusStore.DeviceIDs(ctx)
	if err != nil {
		s.logger.Warn("Failed to list cached devices", zap.Error(err))
	}
	for _, id := range cached {
		seen[id] = true
	}

	devices, err := s.deviceRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, device := range devices {
		seen[device.DeviceID] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &DeviceListResponse{Devices: ids, TotalDevices: len(ids)}, nil
}

// GetStatus returns the cached status or a default one for silent devices
func (s *DeviceService) GetStatus(ctx context.Context, deviceID string) (models.DeviceStatus, error) {
	status, ok, err := s.statusStore.Get(ctx, deviceID)
	if err != nil {
		return models.DeviceStatus{}, fmt.Errorf("failed to read status: %w", err)
	}
	if !ok {
		return models.DefaultDeviceStatus(deviceID, s.now()), nil
	}
	return status, nil
}

// Telemetry returns up to TelemetryLimit readings from the last hours, newest first
func (s *DeviceService) Telemetry(ctx context.Context, deviceID string, hours int) ([]models.Telemetry, error) {
	if hours <= 0 {
		hours = DefaultTelemetryHours
	}

	since := s.now().Add(-time.Duration(hours) * time.Hour)
	records, err := s.telemetryRepo.Window(ctx, deviceID, since, TelemetryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load telemetry: %w", err)
	}
	if records == nil {
		records = []models.Telemetry{}
	}
	return records, nil
}

// GetConfig returns the stored calibration or the defaults for unknown devices
func (s *DeviceService) GetConfig(ctx context.Context, deviceID string) (*DeviceConfigResponse, error) {
	device, err := s.deviceRepo.Get(ctx, deviceID)
	if errors.Is(err, repository.ErrNotFound) {
		device = s.defaultDevice(deviceID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	return &DeviceConfigResponse{Device: device, CapacityLiters: device.CapacityLiters()}, nil
}

// UpdateConfig applies a partial calibration update, registering the device if needed
func (s *DeviceService) UpdateConfig(ctx context.Context, deviceID string, req *DeviceConfigRequest) (*DeviceConfigResponse, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("%w: device id is required", utils.ErrBadRequest)
	}

	device, err := s.deviceRepo.GetOrCreate(ctx, s.defaultDevice(deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	if req.Name != nil {
		device.Name = *req.Name
	}
	if req.TankHeightCm != nil {
		device.TankHeightCm = *req.TankHeightCm
	}
	if req.TankDiameterCm != nil {
		device.TankDiameterCm = *req.TankDiameterCm
	}
	if req.LeakThresholdPercent != nil {
		device.LeakThresholdPercent = *req.LeakThresholdPercent
	}
	if req.OverflowThresholdPercent != nil {
		device.OverflowThresholdPercent = *req.OverflowThresholdPercent
	}
	if req.LowLevelPercent != nil {
		device.LowLevelPercent = *req.LowLevelPercent
	}

	if device.TankHeightCm <= 0 || device.TankDiameterCm <= 0 {
		return nil, fmt.Errorf("%w: tank dimensions must be positive", utils.ErrValidation)
	}

	device.UpdatedAt = s.now()
	if err := s.deviceRepo.Save(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to save device: %w", err)
	}

	s.logger.Info("Device calibration updated",
		zap.String("device_id", deviceID),
		zap.Float64("tank_height_cm", device.TankHeightCm),
		zap.Float64("tank_diameter_cm", device.TankDiameterCm))

	return &DeviceConfigResponse{Device: device, CapacityLiters: device.CapacityLiters()}, nil
}

func (s *DeviceService) defaultDevice(deviceID string) *models.Device {
	return DefaultDevice(deviceID, s.defaults)
}

// DefaultDevice is the calibration given to devices that register by reporting
func DefaultDevice(deviceID string, cfg config.AnalysisConfig) *models.Device {
	return &models.Device{
		DeviceID:                 deviceID,
		TankHeightCm:             cfg.DefaultTankHeightCm,
		TankDiameterCm:           cfg.DefaultTankDiameterCm,
		LeakThresholdPercent:     cfg.LeakThresholdPercent,
		OverflowThresholdPercent: cfg.OverflowThresholdPercent,
		LowLevelPercent:          cfg.LowLevelPercent,
	}
}
