package services

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/testutil"
	"github.com/smart-aqua/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorService(t *testing.T) {
	ctx := context.Background()
	ts := testutil.NewTestSetup(t)
	defer ts.Cleanup()

	service := NewOperatorService(repository.NewOperatorRepository(ts.DB.DB), ts.Config.JWT, ts.Logger)

	t.Run("Should create the bootstrap admin once", func(t *testing.T) {
		require.NoError(t, service.EnsureAdmin(ctx, "admin", "s3cret-pass"))
		require.NoError(t, service.EnsureAdmin(ctx, "admin", "another-pass"))

		var count int64
		require.NoError(t, ts.DB.Model(&models.Operator{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Should issue a signed token for valid credentials", func(t *testing.T) {
		resp, err := service.Authenticate(ctx, "admin", "s3cret-pass")
		require.NoError(t, err)

		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, models.RoleAdmin, resp.Operator.Role)
		require.NotNil(t, resp.Operator.LastLogin)

		claims := &models.Claims{}
		_, err = jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(ts.Config.JWT.Secret), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Username)
		assert.Equal(t, ts.Config.JWT.Issuer, claims.Issuer)
	})

	t.Run("Should reject a wrong password or unknown operator", func(t *testing.T) {
		_, err := service.Authenticate(ctx, "admin", "nope")
		assert.True(t, errors.Is(err, utils.ErrUnauthorized))

		_, err = service.Authenticate(ctx, "ghost", "s3cret-pass")
		assert.True(t, errors.Is(err, utils.ErrUnauthorized))
	})

	t.Run("Should require admin credentials", func(t *testing.T) {
		assert.True(t, errors.Is(service.EnsureAdmin(ctx, "", ""), utils.ErrBadRequest))
	})
}
