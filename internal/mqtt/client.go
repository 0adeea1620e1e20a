// Package mqtt connects the backend to the device message bus.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// Handler receives one message for a device
type Handler func(ctx context.Context, deviceID string, payload []byte)

// ErrNotConnected is returned when publishing while the broker is unreachable
var ErrNotConnected = errors.New("mqtt client not connected")

// delivery is a routed message waiting for its handler
type delivery struct {
	deviceID string
	topic    string
	payload  []byte
	handler  Handler
}

// Client wraps a paho client with topic routing for device messages.
// Handlers run on a single dispatch goroutine so paho's router never waits
// on storage, notifications or publishes made from inside a handler.
type Client struct {
	cfg          *config.MQTTConfig
	logger       *utils.Logger
	client       paho.Client
	handlers     map[Kind]Handler
	queue        chan delivery
	dispatchOnce sync.Once
	mu           sync.RWMutex
}

// NewClient creates a client; call Handle before Connect to receive messages
func NewClient(cfg *config.MQTTConfig, logger *utils.Logger) *Client {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger.Named("mqtt_client"),
		handlers: make(map[Kind]Handler),
		queue:    make(chan delivery, queueSize),
	}

	reconnect := cfg.ReconnectDelay
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnect).
		SetMaxReconnectInterval(reconnect).
		SetConnectTimeout(timeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	return c
}

// Handle routes messages of one kind to a handler
func (c *Client) Handle(kind Kind, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = handler
}

// Connect starts the connection. If the broker is not reachable within the
// connect timeout the client keeps retrying in the background.
func (c *Client) Connect(ctx context.Context) error {
	c.startDispatch(ctx)

	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		c.logger.Warn("MQTT broker not reachable yet, retrying in background",
			zap.String("broker", c.cfg.Broker),
			zap.Duration("retry_interval", c.cfg.ReconnectDelay))
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.cfg.Broker, err)
	}
	return nil
}

// onConnect subscribes on every (re)connect since sessions are clean
func (c *Client) onConnect(client paho.Client) {
	c.logger.Info("Connected to MQTT broker", zap.String("broker", c.cfg.Broker))

	c.mu.RLock()
	kinds := make([]Kind, 0, len(c.handlers))
	for kind := range c.handlers {
		kinds = append(kinds, kind)
	}
	c.mu.RUnlock()

	for _, kind := range kinds {
		topic := WildcardTopic(c.cfg.TopicPrefix, kind)
		token := client.Subscribe(topic, c.cfg.QoS, c.onMessage)
		go func(topic string, token paho.Token) {
			token.Wait()
			if err := token.Error(); err != nil {
				c.logger.Error("Failed to subscribe", zap.String("topic", topic), zap.Error(err))
				return
			}
			c.logger.Info("Subscribed", zap.String("topic", topic))
		}(topic, token)
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("Lost connection to MQTT broker, reconnecting", zap.Error(err))
}

// onMessage routes an incoming message by its topic and queues it for the
// dispatch goroutine. It never blocks; a full queue drops the message.
func (c *Client) onMessage(_ paho.Client, msg paho.Message) {
	deviceID, kind, err := ParseTopic(c.cfg.TopicPrefix, msg.Topic())
	if err != nil {
		c.logger.Warn("Ignoring message on unexpected topic", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}

	c.mu.RLock()
	handler, ok := c.handlers[kind]
	c.mu.RUnlock()

	if !ok {
		return
	}

	select {
	case c.queue <- delivery{deviceID: deviceID, topic: msg.Topic(), payload: msg.Payload(), handler: handler}:
	default:
		c.logger.Warn("Dispatch queue full, dropping message",
			zap.String("topic", msg.Topic()),
			zap.Int("queue_size", cap(c.queue)))
	}
}

// startDispatch launches the dispatch goroutine once
func (c *Client) startDispatch(ctx context.Context) {
	c.dispatchOnce.Do(func() {
		go c.dispatch(ctx)
	})
}

// dispatch runs queued messages through their handlers in arrival order
func (c *Client) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-c.queue:
			c.run(ctx, d)
		}
	}
}

func (c *Client) run(ctx context.Context, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Message handler panicked",
				zap.String("topic", d.topic),
				zap.Any("panic", r))
		}
	}()

	d.handler(ctx, d.deviceID, d.payload)
}

// Publish sends a payload and waits, bounded by the connect timeout, for the
// broker to accept it
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish to %s timed out after %s", topic, timeout)
	}
}

// PublishCommand sends a command payload to a device
func (c *Client) PublishCommand(ctx context.Context, deviceID string, payload []byte) error {
	return c.Publish(ctx, DeviceTopic(c.cfg.TopicPrefix, deviceID, KindCommand), payload)
}

// PublishTelemetry sends a reading as if it came from the device
func (c *Client) PublishTelemetry(ctx context.Context, deviceID string, payload []byte) error {
	return c.Publish(ctx, DeviceTopic(c.cfg.TopicPrefix, deviceID, KindTelemetry), payload)
}

// IsConnected reports whether the broker connection is up
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Disconnect closes the connection, waiting briefly for in-flight work
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	c.logger.Info("Disconnected from MQTT broker")
}
