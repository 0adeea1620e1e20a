package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// CommandController forwards operator commands to devices
type CommandController struct {
	commandService *services.CommandService
	logger         *utils.Logger
}

// NewCommandController creates a new command controller
func NewCommandController(commandService *services.CommandService, logger *utils.Logger) *CommandController {
	return &CommandController{
		commandService: commandService,
		logger:         logger.Named("command_controller"),
	}
}

// RegisterRoutes registers the controller's routes; guard protects every command
func (cc *CommandController) RegisterRoutes(router *gin.RouterGroup, guard ...gin.HandlerFunc) {
	router.POST("/commands", withGuard(guard, cc.SendCommand)...)
}

// SendCommand publishes a command to a device
// @Summary Send device command
// @Description Publishes the command on the device command topic, e.g. PUMP_ON or PUMP_OFF
// @Tags commands
// @Accept json
// @Produce json
// @Param command body services.CommandRequest true "Command"
// @Success 200 {object} services.CommandResponse
// @Failure 400 {object} utils.ValidationErrorResponse
// @Failure 503 {object} utils.ErrorResponse
// @Security BearerAuth
// @Router /commands [post]
func (cc *CommandController) SendCommand(c *gin.Context) {
	var req services.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleValidationErrors(c, err)
		return
	}

	resp, err := cc.commandService.Send(c.Request.Context(), req)
	if err != nil {
		cc.logger.Warn("Command not delivered",
			zap.String("device_id", req.DeviceID),
			zap.String("action", req.Action),
			zap.Error(err))
		utils.HandleError(c, err, cc.logger)
		return
	}

	c.JSON(http.StatusOK, resp)
}
