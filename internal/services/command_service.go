package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// Pump actions understood by the firmware
const (
	ActionPumpOn  = "PUMP_ON"
	ActionPumpOff = "PUMP_OFF"
)

// CommandPublisher sends a raw command payload to one device
type CommandPublisher interface {
	PublishCommand(ctx context.Context, deviceID string, payload []byte) error
}

// CommandRequest is an operator or rule request to act on a device
type CommandRequest struct {
	DeviceID   string                 `json:"device_id" binding:"required"`
	Action     string                 `json:"action" binding:"required"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Command is the payload published on the device command topic
type Command struct {
	Action     string                 `json:"action"`
	Timestamp  time.Time              `json:"timestamp"`
	Parameters map[string]interface{} `json:"parameters"`
	CommandID  string                 `json:"command_id"`
}

// CommandResponse is returned to the HTTP caller
type CommandResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	CommandID string `json:"command_id,omitempty"`
}

// CommandService publishes fire-and-forget commands to devices
type CommandService struct {
	publisher CommandPublisher
	feed      *NotificationService
	logger    *utils.Logger
	now       func() time.Time
}

// NewCommandService creates a new command service. feed may be nil.
func NewCommandService(publisher CommandPublisher, feed *NotificationService, logger *utils.Logger) *CommandService {
	return &CommandService{
		publisher: publisher,
		feed:      feed,
		logger:    logger.Named("command_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Send validates and publishes a command
func (s *CommandService) Send(ctx context.Context, req CommandRequest) (*CommandResponse, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	action := strings.TrimSpace(req.Action)
	if deviceID == "" || action == "" {
		return nil, fmt.Errorf("%w: device_id and action are required", utils.ErrBadRequest)
	}
	if s.publisher == nil {
		return nil, fmt.Errorf("%w: command transport is not connected", utils.ErrServiceUnavailable)
	}

	params := req.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}

	command := Command{
		Action:     action,
		Timestamp:  s.now(),
		Parameters: params,
		CommandID:  uuid.NewString(),
	}

	payload, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	if err := s.publisher.PublishCommand(ctx, deviceID, payload); err != nil {
		return nil, fmt.Errorf("%w: failed to publish command: %v", utils.ErrServiceUnavailable, err)
	}

	s.logger.Info("Command sent",
		zap.String("device_id", deviceID),
		zap.String("action", action),
		zap.String("command_id", command.CommandID))

	if s.feed != nil {
		s.feed.Publish(NotificationTypeCommand, deviceID, command)
	}

	return &CommandResponse{
		Status:    "success",
		Message:   fmt.Sprintf("Command sent to %s", deviceID),
		CommandID: command.CommandID,
	}, nil
}

// StopPump sends the pump-off command raised by the overflow rule
func (s *CommandService) StopPump(ctx context.Context, deviceID, reason string) error {
	_, err := s.Send(ctx, CommandRequest{
		DeviceID:   deviceID,
		Action:     ActionPumpOff,
		Parameters: map[string]interface{}{"reason": reason},
	})
	return err
}
