package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// DeviceAlertMessage is the payload devices publish on their alert topic
type DeviceAlertMessage struct {
	DeviceID    string   `json:"device_id"`
	AlertType   string   `json:"alert_type"`
	Message     string   `json:"message"`
	Timestamp   *float64 `json:"timestamp,omitempty"`
	LevelCm     float64  `json:"level_cm"`
	PercentFull float64  `json:"percent_full"`
	Severity    string   `json:"severity,omitempty"`
}

// AlertListResponse is a page of alerts
type AlertListResponse struct {
	Alerts     []models.Alert `json:"alerts"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// notifyTimeout bounds one background notification fan-out
const notifyTimeout = 15 * time.Second

// AlertService stores alerts and forwards them to the notifier
type AlertService struct {
	alertRepo     repository.AlertRepository
	notifier      Notifier
	cooldown      time.Duration
	notifyTimeout time.Duration
	logger        *utils.Logger
	now           func() time.Time
	pending       sync.WaitGroup
}

// NewAlertService creates a new alert service. notifier may be nil.
func NewAlertService(alertRepo repository.AlertRepository, notifier Notifier, cfg config.AnalysisConfig, logger *utils.Logger) *AlertService {
	return &AlertService{
		alertRepo:     alertRepo,
		notifier:      notifier,
		cooldown:      cfg.AlertCooldown,
		notifyTimeout: notifyTimeout,
		logger:        logger.Named("alert_service"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Raise persists an alert and notifies about it in the background. It reports
// whether the alert was stored; suppressed duplicates inside the cooldown
// return false.
func (s *AlertService) Raise(ctx context.Context, alert *models.Alert) (bool, error) {
	if s.cooldown > 0 {
		_, err := s.alertRepo.LatestUnresolved(ctx, alert.DeviceID, alert.AlertType, s.now().Add(-s.cooldown))
		if err == nil {
			s.logger.Debug("Alert suppressed by cooldown",
				zap.String("device_id", alert.DeviceID),
				zap.String("alert_type", string(alert.AlertType)))
			return false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Cooldown lookup failed, raising anyway", zap.Error(err))
		}
	}

	if err := s.alertRepo.Insert(ctx, alert); err != nil {
		return false, fmt.Errorf("failed to store alert: %w", err)
	}

	s.logger.Info("Alert raised",
		zap.Uint("alert_id", alert.ID),
		zap.String("device_id", alert.DeviceID),
		zap.String("alert_type", string(alert.AlertType)),
		zap.String("severity", string(alert.Severity)))

	s.notify(ctx, alert)
	return true, nil
}

// ReceiveDeviceAlert stores an alert published by the device itself
func (s *AlertService) ReceiveDeviceAlert(ctx context.Context, deviceID string, msg *DeviceAlertMessage) error {
	if msg.DeviceID != "" {
		deviceID = msg.DeviceID
	}
	if deviceID == "" {
		return fmt.Errorf("%w: device_id is required", utils.ErrValidation)
	}
	if strings.TrimSpace(msg.Message) == "" {
		return fmt.Errorf("%w: message is required", utils.ErrValidation)
	}

	alertType := models.AlertType(strings.ToUpper(strings.TrimSpace(msg.AlertType)))
	if alertType == "" {
		alertType = models.AlertDevice
	}

	timestamp := s.now()
	if msg.Timestamp != nil && *msg.Timestamp > 0 {
		timestamp = epochSeconds(*msg.Timestamp)
	}

	alert := &models.Alert{
		DeviceID:    deviceID,
		AlertType:   alertType,
		Message:     msg.Message,
		Timestamp:   timestamp,
		LevelCm:     msg.LevelCm,
		PercentFull: msg.PercentFull,
		Severity:    parseSeverity(msg.Severity),
	}

	_, err := s.Raise(ctx, alert)
	return err
}

// HandleMessage decodes an alert published on a device alert topic.
// Errors are logged, never returned.
func (s *AlertService) HandleMessage(ctx context.Context, deviceID string, payload []byte) {
	var msg DeviceAlertMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("Dropping undecodable device alert", zap.String("device_id", deviceID), zap.Error(err))
		return
	}
	if deviceID != "" {
		msg.DeviceID = deviceID
	}

	if err := s.ReceiveDeviceAlert(ctx, deviceID, &msg); err != nil {
		s.logger.Warn("Device alert rejected", zap.String("device_id", deviceID), zap.Error(err))
	}
}

// List returns a page of a device's alerts, newest first
func (s *AlertService) List(ctx context.Context, deviceID string, resolved *bool, page utils.PaginationRequest) (*AlertListResponse, error) {
	alerts, total, err := s.alertRepo.List(ctx, repository.AlertFilter{
		DeviceID: deviceID,
		Resolved: resolved,
		Page:     page,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	return &AlertListResponse{
		Alerts:     alerts,
		Total:      total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: utils.TotalPages(total, page.Limit),
	}, nil
}

// Resolve marks an alert resolved. Resolving twice succeeds.
func (s *AlertService) Resolve(ctx context.Context, deviceID string, alertID uint, resolvedBy string) error {
	err := s.alertRepo.Resolve(ctx, deviceID, alertID, resolvedBy, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("alert %d for device %s: %w", alertID, deviceID, utils.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}

	s.logger.Info("Alert resolved",
		zap.Uint("alert_id", alertID),
		zap.String("device_id", deviceID),
		zap.String("resolved_by", resolvedBy))
	return nil
}

// CountOpen returns the number of unresolved alerts for a device
func (s *AlertService) CountOpen(ctx context.Context, deviceID string) (int64, error) {
	return s.alertRepo.CountUnresolved(ctx, deviceID)
}

// Wait blocks until every background notification has finished
func (s *AlertService) Wait() {
	s.pending.Wait()
}

// notify hands the alert to the notifier without holding up the caller, which
// may be the MQTT dispatch loop
func (s *AlertService) notify(ctx context.Context, alert *models.Alert) {
	if s.notifier == nil {
		return
	}

	snapshot := *alert
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(ctx, &snapshot); err != nil {
			s.logger.Warn("Alert notification failed",
				zap.Uint("alert_id", snapshot.ID),
				zap.String("device_id", snapshot.DeviceID),
				zap.Error(err))
		}
	}()
}

func parseSeverity(raw string) models.Severity {
	switch severity := models.Severity(strings.ToLower(strings.TrimSpace(raw))); severity {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
		return severity
	default:
		return models.SeverityMedium
	}
}

// epochSeconds converts a fractional unix timestamp to UTC time
func epochSeconds(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
