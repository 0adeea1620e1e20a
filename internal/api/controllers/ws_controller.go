package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/smart-aqua/backend/internal/api/middleware"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// WebSocketController upgrades dashboard connections onto the live feed
type WebSocketController struct {
	hub      *services.NotificationService
	upgrader websocket.Upgrader
	logger   *utils.Logger
}

// NewWebSocketController creates a new websocket controller
func NewWebSocketController(hub *services.NotificationService, logger *utils.Logger) *WebSocketController {
	return &WebSocketController{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from another origin; CORS is open as well
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("ws_controller"),
	}
}

// RegisterRoutes registers the controller's routes with the router group
func (wc *WebSocketController) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws", wc.Connect)
}

// Connect upgrades the request. The optional devices query parameter is a
// comma separated list of device ids to follow; empty follows every device.
// @Summary Live feed
// @Tags live
// @Param devices query string false "Comma separated device ids"
// @Success 101
// @Router /ws [get]
func (wc *WebSocketController) Connect(c *gin.Context) {
	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wc.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	var devices []string
	for _, id := range strings.Split(c.Query("devices"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			devices = append(devices, id)
		}
	}

	wc.hub.RegisterClient(conn, middleware.OperatorName(c, c.ClientIP()), devices...)
}
