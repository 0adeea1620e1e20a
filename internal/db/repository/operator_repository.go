package repository

import (
	"context"
	"time"

	"github.com/smart-aqua/backend/internal/db/models"
	"gorm.io/gorm"
)

// OperatorRepository defines operations on dashboard operators
type OperatorRepository interface {
	Repository
	Create(ctx context.Context, operator *models.Operator) error
	GetByUsername(ctx context.Context, username string) (*models.Operator, error)
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
}

// operatorRepository implements OperatorRepository
type operatorRepository struct {
	BaseRepository
}

// NewOperatorRepository creates a new operator repository
func NewOperatorRepository(db *gorm.DB) OperatorRepository {
	return &operatorRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts an operator; the password is hashed by the model hook
func (r *operatorRepository) Create(ctx context.Context, operator *models.Operator) error {
	var count int64
	if err := r.withContext(ctx).Model(&models.Operator{}).Where("username = ?", operator.Username).Count(&count).Error; err != nil {
		return r.handleError(err)
	}
	if count > 0 {
		return ErrConflict
	}
	return r.handleError(r.withContext(ctx).Create(operator).Error)
}

// GetByUsername fetches an active operator
func (r *operatorRepository) GetByUsername(ctx context.Context, username string) (*models.Operator, error) {
	var operator models.Operator
	err := r.withContext(ctx).Where("username = ? AND active = ?", username, true).First(&operator).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return &operator, nil
}

// TouchLastLogin records a successful login
func (r *operatorRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	result := r.withContext(ctx).Model(&models.Operator{}).Where("id = ?", id).Update("last_login", at.UTC())
	if result.Error != nil {
		return r.handleError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
