package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsMaxMessageSize = 4096
	wsSendBuffer     = 256
)

// Client represents a websocket client connection
type Client struct {
	conn     *websocket.Conn
	operator string
	send     chan []byte
	// devices the client follows; empty means every device
	devices map[string]bool
}

// NotificationType defines types of live feed messages
type NotificationType string

const (
	// NotificationTypeTelemetry carries a fresh device status
	NotificationTypeTelemetry NotificationType = "telemetry"
	// NotificationTypeAlert carries a newly stored alert
	NotificationTypeAlert NotificationType = "alert"
	// NotificationTypeCommand echoes a pump command sent to a device
	NotificationTypeCommand NotificationType = "command"
)

// NotificationMessage represents a message sent to clients
type NotificationMessage struct {
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	DeviceID  string           `json:"device_id"`
	Payload   interface{}      `json:"payload"`
}

// NotificationService is the websocket hub behind the live dashboard feed
type NotificationService struct {
	logger     *utils.Logger
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *NotificationMessage
	done       chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

// NewNotificationService creates the hub and starts its loop
func NewNotificationService(logger *utils.Logger) *NotificationService {
	service := &NotificationService{
		logger:     logger.Named("notification_service"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *NotificationMessage, wsSendBuffer),
		done:       make(chan struct{}),
	}

	go service.run()
	return service
}

// RegisterClient adds a websocket connection to the hub, optionally following some devices
func (s *NotificationService) RegisterClient(conn *websocket.Conn, operator string, devices ...string) *Client {
	client := &Client{
		conn:     conn,
		operator: operator,
		send:     make(chan []byte, wsSendBuffer),
		devices:  make(map[string]bool),
	}
	for _, deviceID := range devices {
		if deviceID != "" {
			client.devices[deviceID] = true
		}
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return client
	}

	go s.readPump(client)
	go s.writePump(client)

	return client
}

// Subscribe makes a client follow a device
func (s *NotificationService) Subscribe(client *Client, deviceID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	client.devices[deviceID] = true

	s.logger.Debug("Client subscribed to device",
		zap.String("operator", client.operator),
		zap.String("device_id", deviceID))
}

// Unsubscribe stops a client following a device
func (s *NotificationService) Unsubscribe(client *Client, deviceID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(client.devices, deviceID)

	s.logger.Debug("Client unsubscribed from device",
		zap.String("operator", client.operator),
		zap.String("device_id", deviceID))
}

// Publish queues a message for every interested client
func (s *NotificationService) Publish(notificationType NotificationType, deviceID string, payload interface{}) {
	message := &NotificationMessage{
		Type:      notificationType,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Payload:   payload,
	}

	select {
	case s.broadcast <- message:
	case <-s.done:
	default:
		s.logger.Warn("Live feed backlog full, message dropped",
			zap.String("type", string(notificationType)),
			zap.String("device_id", deviceID))
	}
}

// Notify implements Notifier for the live feed
func (s *NotificationService) Notify(_ context.Context, alert *models.Alert) error {
	s.Publish(NotificationTypeAlert, alert.DeviceID, alert)
	return nil
}

// PublishStatus pushes a device status to the live feed
func (s *NotificationService) PublishStatus(status models.DeviceStatus) {
	s.Publish(NotificationTypeTelemetry, status.DeviceID, status)
}

// ClientCount returns the number of connected clients
func (s *NotificationService) ClientCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}

// Close stops the hub and disconnects every client
func (s *NotificationService) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// run processes messages in the main loop
func (s *NotificationService) run() {
	for {
		select {
		case <-s.done:
			s.mutex.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			s.mutex.Unlock()
			return

		case client := <-s.register:
			s.mutex.Lock()
			s.clients[client] = true
			s.mutex.Unlock()
			s.logger.Debug("Client registered", zap.String("operator", client.operator))

		case client := <-s.unregister:
			s.mutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.mutex.Unlock()
			s.logger.Debug("Client unregistered", zap.String("operator", client.operator))

		case message := <-s.broadcast:
			s.deliver(message)
		}
	}
}

// deliver sends a message to the clients following its device
func (s *NotificationService) deliver(message *NotificationMessage) {
	jsonMessage, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to marshal notification message",
			zap.Error(err),
			zap.String("type", string(message.Type)),
			zap.String("device_id", message.DeviceID))
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for client := range s.clients {
		if len(client.devices) > 0 && !client.devices[message.DeviceID] {
			continue
		}

		select {
		case client.send <- jsonMessage:
		default:
			// Slow consumer
			delete(s.clients, client)
			close(client.send)
			s.logger.Warn("Client buffer full, connection closed",
				zap.String("operator", client.operator))
		}
	}
}

// readPump handles subscribe/unsubscribe requests from the client
func (s *NotificationService) readPump(client *Client) {
	defer func() {
		select {
		case s.unregister <- client:
		case <-s.done:
		}
		client.conn.Close()
	}()

	client.conn.SetReadLimit(wsMaxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				s.logger.Warn("Unexpected websocket close",
					zap.Error(err),
					zap.String("operator", client.operator))
			}
			break
		}

		var clientMsg struct {
			Action   string `json:"action"`
			DeviceID string `json:"device_id"`
		}

		if err := json.Unmarshal(message, &clientMsg); err != nil {
			s.logger.Warn("Invalid client message",
				zap.Error(err),
				zap.ByteString("message", message))
			continue
		}

		switch clientMsg.Action {
		case "subscribe":
			if clientMsg.DeviceID != "" {
				s.Subscribe(client, clientMsg.DeviceID)
			}
		case "unsubscribe":
			if clientMsg.DeviceID != "" {
				s.Unsubscribe(client, clientMsg.DeviceID)
			}
		}
	}
}

// writePump writes queued messages and keeps the connection alive
func (s *NotificationService) writePump(client *Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
