package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadConfig(t *testing.T) {
	t.Run("Should apply defaults without a config file", func(t *testing.T) {
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, 8000, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "smartAqua", cfg.MQTT.TopicPrefix)
		assert.Equal(t, 5*time.Second, cfg.MQTT.ReconnectDelay)
		assert.Equal(t, 150.0, cfg.Analysis.DefaultTankHeightCm)
		assert.Equal(t, 100.0, cfg.Analysis.DefaultTankDiameterCm)
		assert.Equal(t, 95.0, cfg.Analysis.OverflowThresholdPercent)
		assert.Equal(t, 10, cfg.Analysis.LeakWindow)
		assert.Zero(t, cfg.Analysis.AlertCooldown)
		assert.False(t, cfg.Kafka.Enabled)
		assert.False(t, cfg.Redis.Enabled)
		assert.False(t, cfg.Telegram.Configured())
		assert.NotEmpty(t, cfg.JWT.Secret)
	})

	t.Run("Should read values from the config file", func(t *testing.T) {
		dir := writeConfig(t, `
server:
  port: 9000
mqtt:
  broker: tcp://broker:1883
  topic_prefix: tanks
analysis:
  leak_threshold_percent: 2.5
  alert_cooldown: 5m
telegram:
  bot_token: token
  chat_id: "42"
`)
		cfg, err := LoadConfig(dir)
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
		assert.Equal(t, "tanks", cfg.MQTT.TopicPrefix)
		assert.Equal(t, 2.5, cfg.Analysis.LeakThresholdPercent)
		assert.Equal(t, 5*time.Minute, cfg.Analysis.AlertCooldown)
		assert.True(t, cfg.Telegram.Configured())
	})

	t.Run("Should let environment variables override the file", func(t *testing.T) {
		t.Setenv("SMARTAQUA_MQTT_BROKER", "tcp://env-broker:1883")
		dir := writeConfig(t, "mqtt:\n  broker: tcp://broker:1883\n")

		cfg, err := LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, "tcp://env-broker:1883", cfg.MQTT.Broker)
	})

	t.Run("Should reject an unknown database driver", func(t *testing.T) {
		dir := writeConfig(t, "database:\n  driver: mysql\n")
		_, err := LoadConfig(dir)
		assert.Error(t, err)
	})

	t.Run("Should require an admin password when auth is enabled", func(t *testing.T) {
		dir := writeConfig(t, "auth:\n  enabled: true\n")
		_, err := LoadConfig(dir)
		assert.Error(t, err)
	})

	t.Run("Should require a database password in production", func(t *testing.T) {
		t.Setenv("SMARTAQUA_DATABASE_PASSWORD", "")
		dir := writeConfig(t, "server:\n  environment: production\ndatabase:\n  driver: postgres\n")
		_, err := LoadConfig(dir)
		assert.Error(t, err)
	})

	t.Run("Should reject a leak window below two readings", func(t *testing.T) {
		dir := writeConfig(t, "analysis:\n  leak_window: 1\n")
		_, err := LoadConfig(dir)
		assert.Error(t, err)
	})
}

func TestDatabaseDSN(t *testing.T) {
	t.Run("Should build a sqlite DSN from the path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: "sqlite", Path: "tanks.db"}
		assert.Equal(t, "tanks.db?_journal_mode=WAL&_busy_timeout=5000", cfg.GetDSN())
	})

	t.Run("Should build a postgres DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "db",
			Port:     5432,
			User:     "aqua",
			Password: "pw",
			DBName:   "smartaqua",
			SSLMode:  "disable",
			TimeZone: "UTC",
		}
		assert.Equal(t, "host=db port=5432 user=aqua password=pw dbname=smartaqua sslmode=disable TimeZone=UTC", cfg.GetDSN())
	})
}
