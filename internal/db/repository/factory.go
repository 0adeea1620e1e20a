package repository

import "gorm.io/gorm"

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db            *gorm.DB
	telemetryRepo TelemetryRepository
	alertRepo     AlertRepository
	deviceRepo    DeviceRepository
	operatorRepo  OperatorRepository
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(db *gorm.DB) *RepositoryFactory {
	return &RepositoryFactory{
		db: db,
	}
}

// Telemetry returns the telemetry repository
func (f *RepositoryFactory) Telemetry() TelemetryRepository {
	if f.telemetryRepo == nil {
		f.telemetryRepo = NewTelemetryRepository(f.db)
	}
	return f.telemetryRepo
}

// Alert returns the alert repository
func (f *RepositoryFactory) Alert() AlertRepository {
	if f.alertRepo == nil {
		f.alertRepo = NewAlertRepository(f.db)
	}
	return f.alertRepo
}

// Device returns the device repository
func (f *RepositoryFactory) Device() DeviceRepository {
	if f.deviceRepo == nil {
		f.deviceRepo = NewDeviceRepository(f.db)
	}
	return f.deviceRepo
}

// Operator returns the operator repository
func (f *RepositoryFactory) Operator() OperatorRepository {
	if f.operatorRepo == nil {
		f.operatorRepo = NewOperatorRepository(f.db)
	}
	return f.operatorRepo
}
