package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smart-aqua/backend/internal/api/middleware"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/smart-aqua/backend/internal/utils"
)

// AlertQuery filters a device's alerts
type AlertQuery struct {
	Resolved *bool `form:"resolved"`
}

// AlertController lists and resolves alerts
type AlertController struct {
	alertService *services.AlertService
	logger       *utils.Logger
}

// NewAlertController creates a new alert controller
func NewAlertController(alertService *services.AlertService, logger *utils.Logger) *AlertController {
	return &AlertController{
		alertService: alertService,
		logger:       logger.Named("alert_controller"),
	}
}

// RegisterRoutes registers routes under /devices; guard protects resolve
func (ac *AlertController) RegisterRoutes(router *gin.RouterGroup, guard ...gin.HandlerFunc) {
	router.GET("/:id/alerts", ac.ListAlerts)
	router.POST("/:id/alerts/:alert_id/resolve", withGuard(guard, ac.ResolveAlert)...)
}

// ListAlerts returns a device's alerts, newest first.
// Paging totals are reported in the X-Total-Count and X-Total-Pages headers.
// @Summary List alerts
// @Tags alerts
// @Produce json
// @Param id path string true "Device ID"
// @Param resolved query bool false "Filter by resolved flag"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(50)
// @Success 200 {array} models.Alert
// @Router /devices/{id}/alerts [get]
func (ac *AlertController) ListAlerts(c *gin.Context) {
	var query AlertQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.HandleValidationErrors(c, err)
		return
	}

	page, err := ac.alertService.List(c.Request.Context(), c.Param("id"), query.Resolved, utils.GetPaginationFromContext(c))
	if err != nil {
		utils.HandleError(c, err, ac.logger)
		return
	}

	c.Header("X-Total-Count", strconv.FormatInt(page.Total, 10))
	c.Header("X-Total-Pages", strconv.Itoa(page.TotalPages))
	c.JSON(http.StatusOK, page.Alerts)
}

// ResolveAlert marks an alert resolved
// @Summary Resolve alert
// @Tags alerts
// @Produce json
// @Param id path string true "Device ID"
// @Param alert_id path int true "Alert ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} utils.ErrorResponse
// @Security BearerAuth
// @Router /devices/{id}/alerts/{alert_id}/resolve [post]
func (ac *AlertController) ResolveAlert(c *gin.Context) {
	alertID, err := strconv.ParseUint(c.Param("alert_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	operator := middleware.OperatorName(c, "dashboard")
	if err := ac.alertService.Resolve(c.Request.Context(), c.Param("id"), uint(alertID), operator); err != nil {
		utils.HandleError(c, err, ac.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert resolved"})
}
