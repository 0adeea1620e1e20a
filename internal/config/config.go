package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
	Environment  string `mapstructure:"environment"`
}

// DatabaseConfig holds database-specific configuration.
// Driver is either "sqlite" (Path is used) or "postgres".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

// MQTTConfig holds the broker connection used for telemetry and commands
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            byte          `mapstructure:"qos"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueueSize      int           `mapstructure:"queue_size"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Brokers          string `mapstructure:"brokers"`
	ConsumerGroup    string `mapstructure:"consumer_group"`
	ConsumeIntake    bool   `mapstructure:"consume_intake"`
	PublishTelemetry bool   `mapstructure:"publish_telemetry"`
	SecurityEnable   bool   `mapstructure:"security_enable"`
	SecurityUser     string `mapstructure:"security_user"`
	SecurityPass     string `mapstructure:"security_pass"`
}

// RedisConfig selects the Redis-backed status store when enabled
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// TelegramConfig holds the bot used for alert notifications.
// Notifications are skipped when BotToken or ChatID is empty.
type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIURL   string        `mapstructure:"api_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Configured reports whether Telegram credentials are present
func (c *TelegramConfig) Configured() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// JWTConfig holds JWT authentication configuration
type JWTConfig struct {
	Secret          string `mapstructure:"secret"`
	ExpirationHours int    `mapstructure:"expiration_hours"`
	Issuer          string `mapstructure:"issuer"`
}

// AuthConfig controls operator authentication on mutating endpoints
type AuthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
}

// AnalysisConfig holds tank defaults and detection thresholds
type AnalysisConfig struct {
	DefaultTankHeightCm      float64       `mapstructure:"default_tank_height_cm"`
	DefaultTankDiameterCm    float64       `mapstructure:"default_tank_diameter_cm"`
	LeakThresholdPercent     float64       `mapstructure:"leak_threshold_percent"`
	OverflowThresholdPercent float64       `mapstructure:"overflow_threshold_percent"`
	LowLevelPercent          float64       `mapstructure:"low_level_percent"`
	LowLevelCriticalPercent  float64       `mapstructure:"low_level_critical_percent"`
	PumpFaultFlowLMin        float64       `mapstructure:"pump_fault_flow_l_min"`
	TDSLimitPPM              float64       `mapstructure:"tds_limit_ppm"`
	LeakWindow               int           `mapstructure:"leak_window"`
	AlertCooldown            time.Duration `mapstructure:"alert_cooldown"`
	PredictionHistoryDays    int           `mapstructure:"prediction_history_days"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LoadConfig loads the application configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	if configPath == "" {
		configPath = "./config"
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	// SMARTAQUA_MQTT_BROKER overrides mqtt.broker
	v.SetEnvPrefix("SMARTAQUA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env vars still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15)  // seconds
	v.SetDefault("server.write_timeout", 15) // seconds
	v.SetDefault("server.idle_timeout", 60)  // seconds
	v.SetDefault("server.environment", "development")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "smartaqua.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "smartaqua")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "smartaqua-backend")
	v.SetDefault("mqtt.topic_prefix", "smartAqua")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.reconnect_delay", 5*time.Second)
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("mqtt.queue_size", 256)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "kafka:9092")
	v.SetDefault("kafka.consumer_group", "smartaqua")
	v.SetDefault("kafka.consume_intake", false)
	v.SetDefault("kafka.publish_telemetry", true)
	v.SetDefault("kafka.security_enable", false)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "device_status")
	v.SetDefault("redis.ttl", 0)

	// Telegram defaults
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 10*time.Second)

	// JWT defaults
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("jwt.issuer", "smartaqua")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.admin_username", "admin")

	// Analysis defaults
	v.SetDefault("analysis.default_tank_height_cm", 150.0)
	v.SetDefault("analysis.default_tank_diameter_cm", 100.0)
	v.SetDefault("analysis.leak_threshold_percent", 1.0)
	v.SetDefault("analysis.overflow_threshold_percent", 95.0)
	v.SetDefault("analysis.low_level_percent", 20.0)
	v.SetDefault("analysis.low_level_critical_percent", 10.0)
	v.SetDefault("analysis.pump_fault_flow_l_min", 0.1)
	v.SetDefault("analysis.tds_limit_ppm", 1000.0)
	v.SetDefault("analysis.leak_window", 10)
	v.SetDefault("analysis.alert_cooldown", 0)
	v.SetDefault("analysis.prediction_history_days", 30)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}

	if config.Database.Driver == "postgres" && config.Database.Password == "" {
		dbPassword := os.Getenv("SMARTAQUA_DATABASE_PASSWORD")
		if dbPassword == "" {
			if !config.Server.IsDevelopment() {
				return fmt.Errorf("database password is required in non-development environments")
			}
		} else {
			config.Database.Password = dbPassword
		}
	}

	if config.JWT.Secret == "" {
		if config.Auth.Enabled && !config.Server.IsDevelopment() {
			return fmt.Errorf("JWT secret is required when auth is enabled outside development")
		}
		config.JWT.Secret = "development-jwt-secret-key-change-in-production"
	}

	if config.Auth.Enabled && config.Auth.AdminPassword == "" {
		return fmt.Errorf("auth.admin_password is required when auth is enabled")
	}

	if config.MQTT.Enabled && config.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}

	a := config.Analysis
	if a.DefaultTankHeightCm <= 0 || a.DefaultTankDiameterCm <= 0 {
		return fmt.Errorf("default tank dimensions must be positive")
	}
	if a.LeakWindow < 2 {
		return fmt.Errorf("analysis.leak_window must be at least 2")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, c.TimeZone)
}

// IsProduction returns true if the environment is production
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if the environment is development
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsTest returns true if the environment is test
func (c *ServerConfig) IsTest() bool {
	return c.Environment == "test"
}
