package repository

import (
	"context"
	"errors"

	"github.com/smart-aqua/backend/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepository defines operations on tank calibrations
type DeviceRepository interface {
	Repository
	Get(ctx context.Context, deviceID string) (*models.Device, error)
	// GetOrCreate returns the stored device or inserts defaults for it
	GetOrCreate(ctx context.Context, defaults *models.Device) (*models.Device, error)
	Save(ctx context.Context, device *models.Device) error
	List(ctx context.Context) ([]models.Device, error)
}

// deviceRepository implements DeviceRepository
type deviceRepository struct {
	BaseRepository
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get fetches a device by its external id
func (r *deviceRepository) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	var device models.Device
	if err := r.withContext(ctx).Where("device_id = ?", deviceID).First(&device).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &device, nil
}

// GetOrCreate registers unknown devices with the supplied defaults
func (r *deviceRepository) GetOrCreate(ctx context.Context, defaults *models.Device) (*models.Device, error) {
	device, err := r.Get(ctx, defaults.DeviceID)
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := *defaults
	err = r.withContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "device_id"}}, DoNothing: true}).
		Create(&created).Error
	if err != nil {
		return nil, r.handleError(err)
	}

	// Another writer may have won the insert
	return r.Get(ctx, defaults.DeviceID)
}

// Save inserts or updates a device keyed by device_id
func (r *deviceRepository) Save(ctx context.Context, device *models.Device) error {
	if device.DeviceID == "" {
		return ErrInvalidInput
	}

	if device.ID != 0 {
		return r.handleError(r.withContext(ctx).Save(device).Error)
	}

	err := r.withContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name",
				"tank_height_cm",
				"tank_diameter_cm",
				"leak_threshold_percent",
				"overflow_threshold_percent",
				"low_level_percent",
				"updated_at",
			}),
		}).
		Create(device).Error

	return r.handleError(err)
}

// List returns all registered devices
func (r *deviceRepository) List(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	if err := r.withContext(ctx).Order("device_id").Find(&devices).Error; err != nil {
		return nil, r.handleError(err)
	}
	return devices, nil
}
