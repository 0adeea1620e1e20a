package models

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Role represents operator roles
type Role string

const (
	// RoleAdmin can do everything
	RoleAdmin Role = "admin"
	// RoleOperator can resolve alerts and drive pumps
	RoleOperator Role = "operator"
	// RoleViewer is read-only
	RoleViewer Role = "viewer"
)

// Operator is a person allowed to act on devices from the dashboard
type Operator struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	Username  string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Password  string         `gorm:"not null" json:"-"`
	Role      Role           `gorm:"type:varchar(20);default:'operator'" json:"role"`
	Active    bool           `gorm:"default:true" json:"active"`
	LastLogin *time.Time     `json:"last_login,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hashes the plain password before insert
func (o *Operator) BeforeCreate(tx *gorm.DB) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(o.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	o.Password = string(hashed)
	return nil
}

// CheckPassword compares the provided password with the stored hash
func (o *Operator) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(o.Password), []byte(password)) == nil
}

// Claims represents the JWT claims for operator tokens
type Claims struct {
	OperatorID uint   `json:"operator_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for the operator
func (o *Operator) GenerateToken(secretKey, issuer string, ttl time.Duration) (string, time.Time, error) {
	if secretKey == "" {
		return "", time.Time{}, errors.New("empty JWT secret key")
	}

	expiresAt := time.Now().Add(ttl)
	claims := &Claims{
		OperatorID: o.ID,
		Username:   o.Username,
		Role:       string(o.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
			Subject:   o.Username,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}
