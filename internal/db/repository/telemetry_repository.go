package repository

import (
	"context"
	"time"

	"github.com/smart-aqua/backend/internal/db/models"
	"gorm.io/gorm"
)

// TelemetryRepository defines operations on the per-device reading series
type TelemetryRepository interface {
	Repository
	Insert(ctx context.Context, record *models.Telemetry) error
	InsertBatch(ctx context.Context, records []models.Telemetry) error
	// Since returns readings at or after since, oldest first
	Since(ctx context.Context, deviceID string, since time.Time) ([]models.Telemetry, error)
	// Recent returns up to limit readings, newest first
	Recent(ctx context.Context, deviceID string, limit int) ([]models.Telemetry, error)
	// Window returns up to limit readings at or after since, newest first
	Window(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.Telemetry, error)
	Latest(ctx context.Context, deviceID string) (*models.Telemetry, error)
	DeviceIDs(ctx context.Context) ([]string, error)
}

// telemetryRepository implements TelemetryRepository
type telemetryRepository struct {
	BaseRepository
}

// NewTelemetryRepository creates a new telemetry repository
func NewTelemetryRepository(db *gorm.DB) TelemetryRepository {
	return &telemetryRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Insert appends a single reading
func (r *telemetryRepository) Insert(ctx context.Context, record *models.Telemetry) error {
	if record.DeviceID == "" {
		return ErrInvalidInput
	}
	return r.handleError(r.withContext(ctx).Create(record).Error)
}

// InsertBatch appends many readings in one transaction
func (r *telemetryRepository) InsertBatch(ctx context.Context, records []models.Telemetry) error {
	if len(records) == 0 {
		return nil
	}

	tx := r.withContext(ctx).Begin()
	if tx.Error != nil {
		return r.handleError(tx.Error)
	}

	if err := tx.CreateInBatches(records, 100).Error; err != nil {
		tx.Rollback()
		return r.handleError(err)
	}

	return r.handleError(tx.Commit().Error)
}

// Since returns readings at or after since in chronological order
func (r *telemetryRepository) Since(ctx context.Context, deviceID string, since time.Time) ([]models.Telemetry, error) {
	var records []models.Telemetry
	err := r.withContext(ctx).
		Where("device_id = ? AND timestamp >= ?", deviceID, since.UTC()).
		Order("timestamp asc, id asc").
		Find(&records).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return records, nil
}

// Recent returns the newest readings for a device
func (r *telemetryRepository) Recent(ctx context.Context, deviceID string, limit int) ([]models.Telemetry, error) {
	var records []models.Telemetry
	err := r.withContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return records, nil
}

// Window returns readings at or after since, newest first
func (r *telemetryRepository) Window(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.Telemetry, error) {
	var records []models.Telemetry
	query := r.withContext(ctx).
		Where("device_id = ? AND timestamp >= ?", deviceID, since.UTC()).
		Order("timestamp desc, id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, r.handleError(err)
	}
	return records, nil
}

// Latest returns the newest reading of a device
func (r *telemetryRepository) Latest(ctx context.Context, deviceID string) (*models.Telemetry, error) {
	var record models.Telemetry
	err := r.withContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp desc, id desc").
		First(&record).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return &record, nil
}

// DeviceIDs lists every device that has reported at least once
func (r *telemetryRepository) DeviceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.withContext(ctx).
		Model(&models.Telemetry{}).
		Distinct("device_id").
		Order("device_id").
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return ids, nil
}
