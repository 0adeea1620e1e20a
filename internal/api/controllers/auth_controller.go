package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthController handles operator login
type AuthController struct {
	operatorService *services.OperatorService
	logger          *utils.Logger
}

// NewAuthController creates a new authentication controller
func NewAuthController(operatorService *services.OperatorService, logger *utils.Logger) *AuthController {
	return &AuthController{
		operatorService: operatorService,
		logger:          logger.Named("auth_controller"),
	}
}

// RegisterRoutes registers the controller's routes with the router group
func (ac *AuthController) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	{
		auth.POST("/login", ac.Login)
	}
}

// Login authenticates an operator and returns a JWT token
// @Summary Login operator
// @Tags auth
// @Accept json
// @Produce json
// @Param login_request body LoginRequest true "Login credentials"
// @Success 200 {object} services.LoginResponse "Login successful"
// @Failure 400 {object} utils.ValidationErrorResponse "Invalid request"
// @Failure 401 {object} utils.ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleValidationErrors(c, err)
		return
	}

	resp, err := ac.operatorService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		ac.logger.Warn("Login failed", zap.String("username", req.Username), zap.Error(err))
		utils.HandleError(c, err, ac.logger)
		return
	}

	c.JSON(http.StatusOK, resp)
}
