package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// LoginResponse is returned after a successful login
type LoginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Operator  *models.Operator `json:"operator"`
}

// OperatorService handles dashboard operator logins
type OperatorService struct {
	operatorRepo repository.OperatorRepository
	jwt          config.JWTConfig
	logger       *utils.Logger
}

// NewOperatorService creates a new operator service
func NewOperatorService(operatorRepo repository.OperatorRepository, jwtCfg config.JWTConfig, logger *utils.Logger) *OperatorService {
	return &OperatorService{
		operatorRepo: operatorRepo,
		jwt:          jwtCfg,
		logger:       logger.Named("operator_service"),
	}
}

// Authenticate verifies credentials and issues a token
func (s *OperatorService) Authenticate(ctx context.Context, username, password string) (*LoginResponse, error) {
	operator, err := s.operatorRepo.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid credentials", utils.ErrUnauthorized)
	}
	if err != nil {
		s.logger.Error("Database error during authentication", zap.Error(err))
		return nil, fmt.Errorf("failed to load operator: %w", err)
	}

	if !operator.CheckPassword(password) {
		return nil, fmt.Errorf("%w: invalid credentials", utils.ErrUnauthorized)
	}

	hours := s.jwt.ExpirationHours
	if hours <= 0 {
		hours = 24
	}

	token, expiresAt, err := operator.GenerateToken(s.jwt.Secret, s.jwt.Issuer, time.Duration(hours)*time.Hour)
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	now := time.Now().UTC()
	if err := s.operatorRepo.TouchLastLogin(ctx, operator.ID, now); err != nil {
		s.logger.Warn("Failed to record last login", zap.Uint("operator_id", operator.ID), zap.Error(err))
	} else {
		operator.LastLogin = &now
	}

	s.logger.Info("Operator logged in", zap.String("username", operator.Username))

	return &LoginResponse{Token: token, ExpiresAt: expiresAt, Operator: operator}, nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist
func (s *OperatorService) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: admin username and password are required", utils.ErrBadRequest)
	}

	_, err := s.operatorRepo.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	admin := &models.Operator{
		Username: username,
		Password: password,
		Role:     models.RoleAdmin,
		Active:   true,
	}
	if err := s.operatorRepo.Create(ctx, admin); err != nil && !errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info("Bootstrap admin ensured", zap.String("username", username))
	return nil
}
