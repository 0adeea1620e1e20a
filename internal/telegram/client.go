// Package telegram sends alert notifications through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/utils"
	"go.uber.org/zap"
)

// Client posts messages to one chat
type Client struct {
	config     *config.TelegramConfig
	httpClient *http.Client
	logger     *utils.Logger
	baseURL    string
}

// NewClient creates a new Telegram client
func NewClient(cfg *config.TelegramConfig, logger *utils.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimSuffix(cfg.APIURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger:  logger.Named("telegram_client"),
		baseURL: baseURL,
	}
}

// APIError represents an error response from the Bot API
type APIError struct {
	StatusCode  int
	Description string
}

// Error returns the error message
func (e *APIError) Error() string {
	return fmt.Sprintf("Telegram API error (%d): %s", e.StatusCode, e.Description)
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage posts text to the configured chat
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if !c.config.Configured() {
		c.logger.Debug("Telegram not configured, message skipped")
		return nil
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: c.config.ChatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed apiResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode >= 400 || !parsed.OK {
		description := parsed.Description
		if description == "" {
			description = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Description: description}
	}

	return nil
}

// Notify formats an alert and sends it
func (c *Client) Notify(ctx context.Context, alert *models.Alert) error {
	if err := c.SendMessage(ctx, FormatAlert(alert)); err != nil {
		return fmt.Errorf("telegram notification failed: %w", err)
	}

	c.logger.Debug("Alert sent to Telegram",
		zap.Uint("alert_id", alert.ID),
		zap.String("device_id", alert.DeviceID))
	return nil
}

// FormatAlert renders the operator-facing alert text
func FormatAlert(alert *models.Alert) string {
	var b strings.Builder
	b.WriteString("🚨 SmartAqua Alert\n")
	fmt.Fprintf(&b, "Device: %s\n", alert.DeviceID)
	fmt.Fprintf(&b, "Type: %s\n", alert.AlertType)
	fmt.Fprintf(&b, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "Message: %s\n", alert.Message)
	fmt.Fprintf(&b, "Level: %.1f cm (%.1f%%)\n", alert.LevelCm, alert.PercentFull)
	fmt.Fprintf(&b, "Time: %s UTC", alert.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	return b.String()
}
