// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TestSetup contains utilities for testing
type TestSetup struct {
	Router   *gin.Engine
	DB       *db.Database
	Logger   *utils.Logger
	Config   *config.Config
	Cleanup  func()
	Requires *require.Assertions
}

// NewTestSetup creates a migrated, isolated in-memory SQLite database and a bare router
func NewTestSetup(t require.TestingT) *TestSetup {
	gin.SetMode(gin.TestMode)

	log := &utils.Logger{Logger: zap.NewNop()}

	cfg := TestConfig()

	// Every setup gets its own named in-memory database
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		require.FailNow(t, "Failed to create in-memory database", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		require.FailNow(t, "Failed to get sql.DB", err)
	}
	sqlDB.SetMaxOpenConns(1)

	database := db.Wrap(gormDB, log)
	if err := database.AutoMigrate(); err != nil {
		require.FailNow(t, "Failed to migrate database", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	cleanup := func() {
		_ = sqlDB.Close()
	}

	return &TestSetup{
		Router:   router,
		DB:       database,
		Logger:   log,
		Config:   cfg,
		Cleanup:  cleanup,
		Requires: require.New(t),
	}
}

// TestConfig returns a configuration with production defaults and no external services
func TestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   ":memory:",
		},
		MQTT: config.MQTTConfig{
			TopicPrefix:    "smartAqua",
			ReconnectDelay: 5 * time.Second,
		},
		JWT: config.JWTConfig{
			Secret:          "test-secret-key-for-testing-only",
			ExpirationHours: 1,
			Issuer:          "smartaqua-test",
		},
		Analysis: config.AnalysisConfig{
			DefaultTankHeightCm:      150,
			DefaultTankDiameterCm:    100,
			LeakThresholdPercent:     1,
			OverflowThresholdPercent: 95,
			LowLevelPercent:          20,
			LowLevelCriticalPercent:  10,
			PumpFaultFlowLMin:        0.1,
			TDSLimitPPM:              1000,
			LeakWindow:               10,
			PredictionHistoryDays:    30,
		},
		Log: config.LogConfig{Level: "info", Format: "json"},
	}
}

// ExecuteRequest executes a test request and returns the response
func (ts *TestSetup) ExecuteRequest(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		ts.Requires.NoError(err, "Failed to marshal request body")
	}

	req, err := http.NewRequest(method, path, bytes.NewBuffer(reqBody))
	ts.Requires.NoError(err, "Failed to create request")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp := httptest.NewRecorder()
	ts.Router.ServeHTTP(resp, req)
	return resp
}

// ParseResponse parses the JSON response into the provided target
func (ts *TestSetup) ParseResponse(response *httptest.ResponseRecorder, target interface{}) {
	err := json.Unmarshal(response.Body.Bytes(), target)
	ts.Requires.NoError(err, "Failed to parse response body: %s", response.Body.String())
}

// SeedDevice stores a device with the default 150x100 cm tank
func (ts *TestSetup) SeedDevice(deviceID string) *models.Device {
	device := &models.Device{
		DeviceID:                 deviceID,
		TankHeightCm:             150,
		TankDiameterCm:           100,
		LeakThresholdPercent:     1,
		OverflowThresholdPercent: 95,
		LowLevelPercent:          20,
	}
	ts.Requires.NoError(ts.DB.Create(device).Error, "Failed to seed device")
	return device
}

// SeedTelemetry stores readings as given
func (ts *TestSetup) SeedTelemetry(records ...models.Telemetry) {
	for i := range records {
		ts.Requires.NoError(ts.DB.Create(&records[i]).Error, "Failed to seed telemetry")
	}
}

// Reading builds a pump-off reading for a 150 cm tank
func Reading(deviceID string, at time.Time, levelCm float64) models.Telemetry {
	return models.Telemetry{
		DeviceID:     deviceID,
		Timestamp:    at.UTC(),
		LevelCm:      levelCm,
		TankHeightCm: 150,
		PercentFull:  levelCm / 150 * 100,
		FlowLMin:     0,
		PumpState:    models.PumpOff,
		TemperatureC: 25,
		TDSPPM:       200,
	}
}
