package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// Producer publishes JSON messages to Kafka topics
type Producer struct {
	producer *kafka.Producer
	logger   *utils.Logger
	config   *config.KafkaConfig
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg *config.KafkaConfig, clientID string, logger *utils.Logger) (*Producer, error) {
	kafkaLogger := logger.Named("kafka_producer")

	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"client.id":         clientID,
		"acks":              "all",
	}
	if err := applySecurity(kafkaConfig, cfg); err != nil {
		return nil, err
	}

	producer, err := kafka.NewProducer(kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	// Delivery reports
	go func() {
		for e := range producer.Events() {
			ev, ok := e.(*kafka.Message)
			if !ok {
				continue
			}
			if ev.TopicPartition.Error != nil {
				kafkaLogger.Error("Failed to deliver message",
					zap.String("topic", topicName(ev)),
					zap.Error(ev.TopicPartition.Error))
				continue
			}
			kafkaLogger.Debug("Message delivered",
				zap.String("topic", topicName(ev)),
				zap.Int32("partition", ev.TopicPartition.Partition),
				zap.Int64("offset", int64(ev.TopicPartition.Offset)))
		}
	}()

	return &Producer{
		producer: producer,
		logger:   kafkaLogger,
		config:   cfg,
	}, nil
}

// Message represents a message to be sent to Kafka
type Message struct {
	Key       string
	Value     interface{}
	Timestamp time.Time
	Headers   map[string]string
}

// Produce JSON-encodes the message value and queues it for delivery
func (p *Producer) Produce(topic string, message *Message) error {
	valueBytes, err := json.Marshal(message.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value: %w", err)
	}
	return p.ProduceRaw(topic, message.Key, valueBytes, message.Headers)
}

// ProduceRaw queues an already encoded value
func (p *Producer) ProduceRaw(topic, key string, value []byte, headers map[string]string) error {
	kafkaMessage := buildMessage(topic, key, value, headers)

	p.logger.Debug("Producing message",
		zap.String("topic", topic),
		zap.String("key", key))

	if err := p.producer.Produce(kafkaMessage, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Flush waits up to timeoutMs for queued messages and returns how many remain
func (p *Producer) Flush(timeoutMs int) int {
	return p.producer.Flush(timeoutMs)
}

// Close flushes outstanding messages and closes the producer
func (p *Producer) Close() {
	remaining := p.producer.Flush(5000)
	if remaining > 0 {
		p.logger.Warn("Failed to deliver all messages during flush", zap.Int("remaining", remaining))
	}

	p.producer.Close()
	p.logger.Info("Kafka producer closed")
}

func buildMessage(topic, key string, value []byte, headers map[string]string) *kafka.Message {
	kafkaMessage := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          value,
		Timestamp:      time.Now().UTC(),
	}

	if key != "" {
		kafkaMessage.Key = []byte(key)
	}

	if len(headers) > 0 {
		kafkaMessage.Headers = make([]kafka.Header, 0, len(headers))
		for k, v := range headers {
			kafkaMessage.Headers = append(kafkaMessage.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}

	return kafkaMessage
}

// applySecurity adds SASL_SSL settings when enabled
func applySecurity(kafkaConfig *kafka.ConfigMap, cfg *config.KafkaConfig) error {
	if !cfg.SecurityEnable {
		return nil
	}

	settings := []struct {
		key   string
		value string
	}{
		{"security.protocol", "SASL_SSL"},
		{"sasl.mechanisms", "PLAIN"},
		{"sasl.username", cfg.SecurityUser},
		{"sasl.password", cfg.SecurityPass},
	}
	for _, s := range settings {
		if err := kafkaConfig.SetKey(s.key, s.value); err != nil {
			return fmt.Errorf("failed to set %s: %w", s.key, err)
		}
	}
	return nil
}

func topicName(msg *kafka.Message) string {
	if msg.TopicPartition.Topic == nil {
		return ""
	}
	return *msg.TopicPartition.Topic
}
