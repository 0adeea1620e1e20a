package repository

import (
	"context"
	"time"

	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/utils"
	"gorm.io/gorm"
)

// AlertFilter narrows an alert listing
type AlertFilter struct {
	DeviceID string
	Resolved *bool
	Page     utils.PaginationRequest
}

// AlertRepository defines operations on the append-only alert table
type AlertRepository interface {
	Repository
	Insert(ctx context.Context, alert *models.Alert) error
	List(ctx context.Context, filter AlertFilter) ([]models.Alert, int64, error)
	GetForDevice(ctx context.Context, deviceID string, alertID uint) (*models.Alert, error)
	// Resolve flips resolved to true; resolving twice is a no-op
	Resolve(ctx context.Context, deviceID string, alertID uint, resolvedBy string, at time.Time) error
	// LatestUnresolved returns the newest open alert of a type raised at or after since
	LatestUnresolved(ctx context.Context, deviceID string, alertType models.AlertType, since time.Time) (*models.Alert, error)
	CountUnresolved(ctx context.Context, deviceID string) (int64, error)
}

// alertRepository implements AlertRepository
type alertRepository struct {
	BaseRepository
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Insert appends an alert
func (r *alertRepository) Insert(ctx context.Context, alert *models.Alert) error {
	if alert.DeviceID == "" || alert.AlertType == "" {
		return ErrInvalidInput
	}
	if alert.Severity == "" {
		alert.Severity = models.SeverityMedium
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	return r.handleError(r.withContext(ctx).Create(alert).Error)
}

// List returns alerts newest first along with the total match count
func (r *alertRepository) List(ctx context.Context, filter AlertFilter) ([]models.Alert, int64, error) {
	query := r.withContext(ctx).Model(&models.Alert{}).Where("device_id = ?", filter.DeviceID)
	if filter.Resolved != nil {
		query = query.Where("resolved = ?", *filter.Resolved)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, r.handleError(err)
	}

	var alerts []models.Alert
	err := utils.ApplyPagination(query.Order("timestamp desc, id desc"), filter.Page).Find(&alerts).Error
	if err != nil {
		return nil, 0, r.handleError(err)
	}

	return alerts, total, nil
}

// GetForDevice fetches an alert only if it belongs to the device
func (r *alertRepository) GetForDevice(ctx context.Context, deviceID string, alertID uint) (*models.Alert, error) {
	var alert models.Alert
	err := r.withContext(ctx).
		Where("id = ? AND device_id = ?", alertID, deviceID).
		First(&alert).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return &alert, nil
}

// Resolve marks an alert resolved
func (r *alertRepository) Resolve(ctx context.Context, deviceID string, alertID uint, resolvedBy string, at time.Time) error {
	if _, err := r.GetForDevice(ctx, deviceID, alertID); err != nil {
		return err
	}

	// Only open alerts are touched so the first resolver is kept
	result := r.withContext(ctx).
		Model(&models.Alert{}).
		Where("id = ? AND device_id = ? AND resolved = ?", alertID, deviceID, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": at.UTC(),
			"resolved_by": resolvedBy,
		})

	return r.handleError(result.Error)
}

// LatestUnresolved finds the newest open alert of a type since a point in time
func (r *alertRepository) LatestUnresolved(ctx context.Context, deviceID string, alertType models.AlertType, since time.Time) (*models.Alert, error) {
	var alert models.Alert
	err := r.withContext(ctx).
		Where("device_id = ? AND alert_type = ? AND resolved = ? AND timestamp >= ?", deviceID, alertType, false, since.UTC()).
		Order("timestamp desc, id desc").
		First(&alert).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return &alert, nil
}

// CountUnresolved counts open alerts for a device
func (r *alertRepository) CountUnresolved(ctx context.Context, deviceID string) (int64, error) {
	var count int64
	err := r.withContext(ctx).
		Model(&models.Alert{}).
		Where("device_id = ? AND resolved = ?", deviceID, false).
		Count(&count).Error
	return count, r.handleError(err)
}
