package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/smart-aqua/backend/internal/api/controllers"
	"github.com/smart-aqua/backend/internal/api/middleware"
	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/smart-aqua/backend/internal/utils"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// Router manages the API routes and controllers
type Router struct {
	engine          *gin.Engine
	logger          *utils.Logger
	config          *config.Config
	authMiddleware  *middleware.AuthMiddleware
	serviceProvider *services.ServiceProvider
}

// NewRouter creates a new Router instance
func NewRouter(
	config *config.Config,
	logger *utils.Logger,
	serviceProvider *services.ServiceProvider,
) *Router {
	if config.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.LoggingMiddleware(logger.Named("http")))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type", "Origin"}
	corsConfig.ExposeHeaders = []string{"X-Total-Count", "X-Total-Pages"}
	engine.Use(cors.New(corsConfig))

	return &Router{
		engine:          engine,
		logger:          logger.Named("router"),
		config:          config,
		authMiddleware:  middleware.NewAuthMiddleware(&config.JWT),
		serviceProvider: serviceProvider,
	}
}

// SetupRoutes configures all API routes
func (r *Router) SetupRoutes() {
	sp := r.serviceProvider

	r.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "SmartAqua Backend API", "version": Version})
	})

	r.engine.GET("/health", func(c *gin.Context) {
		components := sp.ComponentHealth(c.Request.Context())
		status := http.StatusOK
		state := "healthy"
		if components["database"] != "up" {
			status = http.StatusServiceUnavailable
			state = "unhealthy"
		}
		components["websocket_clients"] = strconv.Itoa(sp.GetNotificationService().ClientCount())

		c.JSON(status, gin.H{
			"status":     state,
			"timestamp":  time.Now().UTC(),
			"components": components,
		})
	})

	// Mutating routes need an operator token when auth is enabled
	var guard []gin.HandlerFunc
	if r.config.Auth.Enabled {
		guard = r.authMiddleware.RequireOperator()
	}

	root := r.engine.Group("")
	devices := root.Group("/devices")

	controllers.NewDeviceController(sp.GetDeviceService(), sp.GetPredictionService(), r.logger).
		RegisterRoutes(devices, guard...)
	controllers.NewAlertController(sp.GetAlertService(), r.logger).
		RegisterRoutes(devices, guard...)
	controllers.NewCommandController(sp.GetCommandService(), r.logger).
		RegisterRoutes(root, guard...)
	controllers.NewAuthController(sp.GetOperatorService(), r.logger).
		RegisterRoutes(root)
	controllers.NewWebSocketController(sp.GetNotificationService(), r.logger).
		RegisterRoutes(root)

	if !r.config.Server.IsProduction() {
		r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.logger.Info("API routes setup completed")
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
