package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// MessageHandler is a function that processes a Kafka message
type MessageHandler func(msg *kafka.Message) error

// Consumer reads registered topics and dispatches messages to handlers.
// Failed messages are forwarded to "<topic>.dlq".
type Consumer struct {
	consumer    *kafka.Consumer
	logger      *utils.Logger
	config      *config.KafkaConfig
	handlers    map[string][]MessageHandler
	dlqProducer *Producer
	stopChannel chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once
	mu          sync.Mutex
	isRunning   bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, logger *utils.Logger, dlqProducer *Producer) (*Consumer, error) {
	kafkaLogger := logger.Named("kafka_consumer")

	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":       cfg.Brokers,
		"group.id":                cfg.ConsumerGroup,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	}
	if err := applySecurity(kafkaConfig, cfg); err != nil {
		return nil, err
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	return &Consumer{
		consumer:    consumer,
		logger:      kafkaLogger,
		config:      cfg,
		handlers:    make(map[string][]MessageHandler),
		dlqProducer: dlqProducer,
		stopChannel: make(chan struct{}),
		stopped:     make(chan struct{}),
	}, nil
}

// RegisterHandler registers a message handler for a specific topic
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.handlers[topic] = append(c.handlers[topic], handler)
	c.logger.Info("Registered handler for topic", zap.String("topic", topic))
}

// Start subscribes to the registered topics and starts the poll loop
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isRunning {
		return fmt.Errorf("consumer is already running")
	}

	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		return fmt.Errorf("no topics registered")
	}

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}
	c.logger.Info("Subscribed to topics", zap.Strings("topics", topics))

	c.isRunning = true
	go c.consumeLoop(ctx)

	return nil
}

// consumeLoop polls until the context is cancelled or Stop is called
func (c *Consumer) consumeLoop(ctx context.Context) {
	defer close(c.stopped)
	defer func() {
		c.mu.Lock()
		c.isRunning = false
		c.mu.Unlock()
		_ = c.consumer.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context canceled, stopping consumer")
			return

		case <-c.stopChannel:
			c.logger.Info("Received stop signal, stopping consumer")
			return

		default:
			msg, err := c.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				var kafkaErr kafka.Error
				if errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrTimedOut {
					continue
				}
				c.logger.Error("Error reading message from Kafka", zap.Error(err))
				continue
			}

			c.processMessage(msg)
		}
	}
}

// processMessage runs every handler for the message's topic
func (c *Consumer) processMessage(msg *kafka.Message) {
	if msg == nil || msg.TopicPartition.Topic == nil {
		return
	}

	topic := *msg.TopicPartition.Topic
	handlers := c.handlers[topic]
	if len(handlers) == 0 {
		c.logger.Warn("No handlers registered for topic", zap.String("topic", topic))
		return
	}

	for i, handler := range handlers {
		if err := handler(msg); err != nil {
			c.logger.Error("Handler failed to process message",
				zap.String("topic", topic),
				zap.Int("handler_index", i),
				zap.Error(err))
			c.deadLetter(topic, msg, err)
		}
	}
}

func (c *Consumer) deadLetter(topic string, msg *kafka.Message, cause error) {
	if c.dlqProducer == nil {
		return
	}

	dlqTopic := topic + ".dlq"
	headers := map[string]string{
		"error":          cause.Error(),
		"original_topic": topic,
	}

	if err := c.dlqProducer.ProduceRaw(dlqTopic, string(msg.Key), msg.Value, headers); err != nil {
		c.logger.Error("Failed to send message to DLQ",
			zap.String("dlq_topic", dlqTopic),
			zap.Error(err))
	}
}

// Stop stops the poll loop and waits for it to exit
func (c *Consumer) Stop() {
	c.mu.Lock()
	running := c.isRunning
	c.mu.Unlock()

	if running {
		c.stopOnce.Do(func() { close(c.stopChannel) })
		<-c.stopped
	}
	c.logger.Info("Kafka consumer stopped")
}
