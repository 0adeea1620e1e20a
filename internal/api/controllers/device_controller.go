package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/smart-aqua/backend/internal/utils"
)

// TelemetryQuery bounds the telemetry window
type TelemetryQuery struct {
	Hours int `form:"hours" binding:"omitempty,min=1,max=720"`
}

// PredictionQuery sets the forecast horizon
type PredictionQuery struct {
	DaysAhead int `form:"days_ahead" binding:"omitempty,min=1"`
}

// DeviceController serves tank status, history, forecasts and calibration
type DeviceController struct {
	deviceService     *services.DeviceService
	predictionService *services.PredictionService
	logger            *utils.Logger
}

// NewDeviceController creates a new device controller
func NewDeviceController(deviceService *services.DeviceService, predictionService *services.PredictionService, logger *utils.Logger) *DeviceController {
	return &DeviceController{
		deviceService:     deviceService,
		predictionService: predictionService,
		logger:            logger.Named("device_controller"),
	}
}

// RegisterRoutes registers the controller's routes; guard protects calibration updates
func (dc *DeviceController) RegisterRoutes(router *gin.RouterGroup, guard ...gin.HandlerFunc) {
	router.GET("", dc.ListDevices)
	router.GET("/:id/status", dc.GetStatus)
	router.GET("/:id/telemetry", dc.GetTelemetry)
	router.GET("/:id/predictions", dc.GetPredictions)
	router.GET("/:id/config", dc.GetConfig)
	router.PUT("/:id/config", withGuard(guard, dc.UpdateConfig)...)
}

// ListDevices returns every known device
// @Summary List devices
// @Tags devices
// @Produce json
// @Success 200 {object} services.DeviceListResponse
// @Router /devices [get]
func (dc *DeviceController) ListDevices(c *gin.Context) {
	devices, err := dc.deviceService.ListDevices(c.Request.Context())
	if err != nil {
		utils.HandleError(c, err, dc.logger)
		return
	}

	c.JSON(http.StatusOK, devices)
}

// GetStatus returns the latest status of a tank
// @Summary Get device status
// @Description Returns the cached status, or a default status when the device has not reported
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.DeviceStatus
// @Router /devices/{id}/status [get]
func (dc *DeviceController) GetStatus(c *gin.Context) {
	status, err := dc.deviceService.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err, dc.logger)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetTelemetry returns recent readings, newest first
// @Summary Get telemetry history
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Param hours query int false "Window in hours" default(24)
// @Success 200 {array} models.Telemetry
// @Failure 400 {object} utils.ValidationErrorResponse
// @Router /devices/{id}/telemetry [get]
func (dc *DeviceController) GetTelemetry(c *gin.Context) {
	var query TelemetryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.HandleValidationErrors(c, err)
		return
	}

	records, err := dc.deviceService.Telemetry(c.Request.Context(), c.Param("id"), query.Hours)
	if err != nil {
		utils.HandleError(c, err, dc.logger)
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetPredictions returns the daily consumption forecast
// @Summary Get consumption forecast
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Param days_ahead query int false "Days to forecast" default(7)
// @Success 200 {object} services.PredictionResponse
// @Router /devices/{id}/predictions [get]
func (dc *DeviceController) GetPredictions(c *gin.Context) {
	var query PredictionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.HandleValidationErrors(c, err)
		return
	}

	forecast, err := dc.predictionService.Predict(c.Request.Context(), c.Param("id"), query.DaysAhead)
	if err != nil {
		utils.HandleError(c, err, dc.logger)
		return
	}

	c.JSON(http.StatusOK, forecast)
}

// GetConfig returns the tank calibration
// @Summary Get tank calibration
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} services.DeviceConfigResponse
// @Router /devices/{id}/config [get]
func (dc *DeviceController) GetConfig(c *gin.Context) {
	cfg, err := dc.deviceService.GetConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err, dc.logger)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// UpdateConfig changes the tank calibration
// @Summary Update tank calibration
// @Tags devices
// @Accept json
// @Produce json
// @Param id path string true "Device ID"
// @Param config body services.DeviceConfigRequest true "Calibration fields to change"
// @Success 200 {object} services.DeviceConfigResponse
// @Failure 400 {object} utils.ValidationErrorResponse
// @Failure 401 {object} map[string]string
// @Security BearerAuth
// @Router /devices/{id}/config [put]
func (dc *DeviceController) UpdateConfig(c *gin.Context) {
	var req services.DeviceConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleValidationErrors(c, err)
		return
	}

	cfg, err := dc.deviceService.UpdateConfig(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		utils.HandleError(c, err, dc.logger)
		return
	}

	c.JSON(http.StatusOK, cfg)
}
