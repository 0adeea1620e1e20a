package services

import (
	"context"
	"fmt"
	"time"

	"github.com/smart-aqua/backend/internal/kafka"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// intakeMessage is a raw reading taken from the Kafka intake topic
type intakeMessage struct {
	DeviceID   string
	Payload    []byte
	ReceivedAt time.Time
}

// KafkaHandler feeds readings from the Kafka intake topic into ingestion
type KafkaHandler struct {
	logger       *utils.Logger
	kafkaManager *kafka.Manager
	ingestion    *IngestionService
	intake       chan *intakeMessage
}

// NewKafkaHandler creates a new Kafka message handler service
func NewKafkaHandler(logger *utils.Logger, kafkaManager *kafka.Manager, ingestion *IngestionService) *KafkaHandler {
	return &KafkaHandler{
		logger:       logger.Named("kafka_handler"),
		kafkaManager: kafkaManager,
		ingestion:    ingestion,
		intake:       make(chan *intakeMessage, 100),
	}
}

// Initialize registers the intake consumer and starts the processor
func (h *KafkaHandler) Initialize(ctx context.Context) error {
	if err := h.kafkaManager.RegisterTelemetryIntakeHandler("smartaqua", h.handleIntake); err != nil {
		return fmt.Errorf("failed to register telemetry intake handler: %w", err)
	}

	go h.processIntake(ctx)
	return nil
}

// handleIntake queues a message so the consumer loop is never blocked by storage
func (h *KafkaHandler) handleIntake(deviceID string, payload []byte) error {
	msg := &intakeMessage{
		DeviceID:   deviceID,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}

	select {
	case h.intake <- msg:
		return nil
	default:
		return fmt.Errorf("intake buffer full, dropping reading for %q", deviceID)
	}
}

// processIntake drains the intake buffer one message at a time
func (h *KafkaHandler) processIntake(ctx context.Context) {
	h.logger.Info("Starting telemetry intake processor")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Stopping telemetry intake processor")
			return

		case msg := <-h.intake:
			h.logger.Debug("Processing intake reading",
				zap.String("device_id", msg.DeviceID),
				zap.Duration("queued", time.Since(msg.ReceivedAt)))
			h.ingestion.HandleMessage(ctx, msg.DeviceID, msg.Payload)
		}
	}
}
