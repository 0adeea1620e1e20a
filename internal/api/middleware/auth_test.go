package middleware_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smart-aqua/backend/internal/api/middleware"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	ts := testutil.NewTestSetup(t)
	defer ts.Cleanup()

	auth := middleware.NewAuthMiddleware(&ts.Config.JWT)
	handlers := append(auth.RequireOperator(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"operator": middleware.OperatorName(c, "anonymous")})
	})
	ts.Router.POST("/protected", handlers...)
	ts.Router.GET("/open", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"operator": middleware.OperatorName(c, "dashboard")})
	})

	token := func(role models.Role, secret string, ttl time.Duration) string {
		operator := &models.Operator{ID: 3, Username: "alice", Role: role}
		signed, _, err := operator.GenerateToken(secret, ts.Config.JWT.Issuer, ttl)
		require.NoError(t, err)
		return signed
	}
	bearer := func(tok string) map[string]string {
		return map[string]string{"Authorization": "Bearer " + tok}
	}

	t.Run("Should reject requests without a token", func(t *testing.T) {
		resp := ts.ExecuteRequest(http.MethodPost, "/protected", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
		assert.Contains(t, resp.Body.String(), "Authorization header is required")
	})

	t.Run("Should reject a malformed header", func(t *testing.T) {
		resp := ts.ExecuteRequest(http.MethodPost, "/protected", nil, map[string]string{"Authorization": "Token abc"})
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("Should reject a token signed with another secret", func(t *testing.T) {
		resp := ts.ExecuteRequest(http.MethodPost, "/protected", nil, bearer(token(models.RoleOperator, "other-secret", time.Hour)))
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
		assert.Contains(t, resp.Body.String(), "invalid token")
	})

	t.Run("Should reject an expired token", func(t *testing.T) {
		resp := ts.ExecuteRequest(http.MethodPost, "/protected", nil, bearer(token(models.RoleOperator, ts.Config.JWT.Secret, -time.Hour)))
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
		assert.Contains(t, resp.Body.String(), "token has expired")
	})

	t.Run("Should forbid viewers", func(t *testing.T) {
		resp := ts.ExecuteRequest(http.MethodPost, "/protected", nil, bearer(token(models.RoleViewer, ts.Config.JWT.Secret, time.Hour)))
		assert.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("Should admit operators and admins", func(t *testing.T) {
		for _, role := range []models.Role{models.RoleOperator, models.RoleAdmin} {
			resp := ts.ExecuteRequest(http.MethodPost, "/protected", nil, bearer(token(role, ts.Config.JWT.Secret, time.Hour)))
			require.Equal(t, http.StatusOK, resp.Code, string(role))

			var body map[string]string
			ts.ParseResponse(resp, &body)
			assert.Equal(t, "alice", body["operator"])
		}
	})

	t.Run("Should fall back when unauthenticated", func(t *testing.T) {
		resp := ts.ExecuteRequest(http.MethodGet, "/open", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var body map[string]string
		ts.ParseResponse(resp, &body)
		assert.Equal(t, "dashboard", body["operator"])
	})
}
