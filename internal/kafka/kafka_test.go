package kafka

import (
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	t.Run("Should set topic, key and headers", func(t *testing.T) {
		msg := buildMessage(TopicTelemetry, "tank-1", []byte(`{}`), map[string]string{"device_id": "tank-1"})

		assert.Equal(t, TopicTelemetry, topicName(msg))
		assert.Equal(t, kafka.PartitionAny, msg.TopicPartition.Partition)
		assert.Equal(t, []byte("tank-1"), msg.Key)
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "device_id", msg.Headers[0].Key)
		assert.Equal(t, []byte("tank-1"), msg.Headers[0].Value)
	})

	t.Run("Should leave the key empty when not given", func(t *testing.T) {
		msg := buildMessage(TopicAlerts, "", []byte(`{}`), nil)
		assert.Nil(t, msg.Key)
		assert.Empty(t, msg.Headers)
	})
}

func TestApplySecurity(t *testing.T) {
	t.Run("Should leave the config alone when disabled", func(t *testing.T) {
		cm := &kafka.ConfigMap{}
		require.NoError(t, applySecurity(cm, &config.KafkaConfig{}))
		assert.Empty(t, *cm)
	})

	t.Run("Should configure SASL when enabled", func(t *testing.T) {
		cm := &kafka.ConfigMap{}
		require.NoError(t, applySecurity(cm, &config.KafkaConfig{SecurityEnable: true, SecurityUser: "u", SecurityPass: "p"}))

		protocol, err := cm.Get("security.protocol", "")
		require.NoError(t, err)
		assert.Equal(t, "SASL_SSL", protocol)

		user, err := cm.Get("sasl.username", "")
		require.NoError(t, err)
		assert.Equal(t, "u", user)
	})
}

func TestConsumerDispatch(t *testing.T) {
	newConsumer := func() *Consumer {
		return &Consumer{
			logger:   utils.NewNopLogger(),
			handlers: make(map[string][]MessageHandler),
		}
	}

	t.Run("Should run every handler for the topic", func(t *testing.T) {
		c := newConsumer()
		var calls []string
		c.RegisterHandler(TopicTelemetryIntake, func(msg *kafka.Message) error {
			calls = append(calls, "first:"+string(msg.Key))
			return errors.New("boom")
		})
		c.RegisterHandler(TopicTelemetryIntake, func(msg *kafka.Message) error {
			calls = append(calls, "second:"+string(msg.Key))
			return nil
		})

		c.processMessage(buildMessage(TopicTelemetryIntake, "tank-1", []byte(`{}`), nil))
		assert.Equal(t, []string{"first:tank-1", "second:tank-1"}, calls)
	})

	t.Run("Should ignore messages without handlers", func(t *testing.T) {
		c := newConsumer()
		assert.NotPanics(t, func() {
			c.processMessage(buildMessage("unknown", "", nil, nil))
			c.processMessage(nil)
		})
	})
}
