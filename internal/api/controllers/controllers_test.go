package controllers_test

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/smart-aqua/backend/internal/api/controllers"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/smart-aqua/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	devices  []string
	payloads [][]byte
}

func (p *recordingPublisher) PublishCommand(_ context.Context, deviceID string, payload []byte) error {
	p.devices = append(p.devices, deviceID)
	p.payloads = append(p.payloads, payload)
	return nil
}

type apiFixture struct {
	*testutil.TestSetup
	alerts    *services.AlertService
	operators *services.OperatorService
}

func newAPIFixture(t *testing.T, publisher services.CommandPublisher) *apiFixture {
	ts := testutil.NewTestSetup(t)
	t.Cleanup(ts.Cleanup)

	repos := repository.NewRepositoryFactory(ts.DB.DB)
	store := services.NewMemoryStatusStore()

	deviceService := services.NewDeviceService(repos, store, ts.Config.Analysis, ts.Logger)
	predictionService := services.NewPredictionService(repos, ts.Config.Analysis, ts.Logger)
	alertService := services.NewAlertService(repos.Alert(), nil, ts.Config.Analysis, ts.Logger)
	commandService := services.NewCommandService(publisher, nil, ts.Logger)
	operatorService := services.NewOperatorService(repos.Operator(), ts.Config.JWT, ts.Logger)

	root := ts.Router.Group("")
	devices := root.Group("/devices")
	controllers.NewDeviceController(deviceService, predictionService, ts.Logger).RegisterRoutes(devices)
	controllers.NewAlertController(alertService, ts.Logger).RegisterRoutes(devices)
	controllers.NewCommandController(commandService, ts.Logger).RegisterRoutes(root)
	controllers.NewAuthController(operatorService, ts.Logger).RegisterRoutes(root)

	return &apiFixture{TestSetup: ts, alerts: alertService, operators: operatorService}
}

func TestDeviceController(t *testing.T) {
	f := newAPIFixture(t, nil)

	t.Run("Should serve a default status for a silent device", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodGet, "/devices/tank-9/status", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var status models.DeviceStatus
		f.ParseResponse(resp, &status)
		assert.Equal(t, "tank-9", status.DeviceID)
		assert.Equal(t, 25.0, status.Temperature)
		assert.Nil(t, status.DaysUntilEmpty)
	})

	t.Run("Should reject an out of range telemetry window", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodGet, "/devices/tank-1/telemetry?hours=1000", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("Should return an empty telemetry array", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodGet, "/devices/tank-1/telemetry", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `[]`, resp.Body.String())
	})

	t.Run("Should report insufficient data for forecasts", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodGet, "/devices/tank-1/predictions", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var forecast services.PredictionResponse
		f.ParseResponse(resp, &forecast)
		assert.Empty(t, forecast.Predictions)
		assert.Equal(t, "Insufficient data for predictions", forecast.Message)
	})

	t.Run("Should forecast the requested number of days", func(t *testing.T) {
		now := time.Now().UTC()
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -2)
		f.SeedTelemetry(
			testutil.Reading("tank-2", day.Add(10*time.Hour), 140),
			testutil.Reading("tank-2", day.Add(11*time.Hour), 130),
		)

		resp := f.ExecuteRequest(http.MethodGet, "/devices/tank-2/predictions?days_ahead=3", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var forecast services.PredictionResponse
		f.ParseResponse(resp, &forecast)
		require.Len(t, forecast.Predictions, 3)
		assert.Equal(t, now.Format("2006-01-02"), forecast.Predictions[0].Date)
		assert.Greater(t, forecast.Predictions[0].PredictedConsumption, 0.0)
	})

	t.Run("Should forecast a week when days_ahead is omitted", func(t *testing.T) {
		now := time.Now().UTC()
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -2)
		f.SeedTelemetry(
			testutil.Reading("tank-9", day.Add(10*time.Hour), 140),
			testutil.Reading("tank-9", day.Add(11*time.Hour), 120),
		)

		resp := f.ExecuteRequest(http.MethodGet, "/devices/tank-9/predictions", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var forecast services.PredictionResponse
		f.ParseResponse(resp, &forecast)
		assert.Len(t, forecast.Predictions, services.DefaultDaysAhead)
	})

	t.Run("Should update and read back the calibration", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodPut, "/devices/tank-3/config", map[string]interface{}{"tank_height_cm": 200}, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		resp = f.ExecuteRequest(http.MethodGet, "/devices/tank-3/config", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var cfg map[string]interface{}
		f.ParseResponse(resp, &cfg)
		assert.Equal(t, 200.0, cfg["tank_height_cm"])
		assert.InDelta(t, 1570.8, cfg["capacity_liters"], 0.1)
	})

	t.Run("Should reject a negative dimension", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodPut, "/devices/tank-3/config", map[string]interface{}{"tank_diameter_cm": -5}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("Should list registered devices", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodGet, "/devices", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var list services.DeviceListResponse
		f.ParseResponse(resp, &list)
		assert.Contains(t, list.Devices, "tank-3")
	})
}

func TestAlertController(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	var ids []uint
	for i := 0; i < 3; i++ {
		alert := &models.Alert{
			DeviceID:  "tank-1",
			AlertType: models.AlertLowLevel,
			Message:   "low",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		stored, err := f.alerts.Raise(ctx, alert)
		require.NoError(t, err)
		require.True(t, stored)
		ids = append(ids, alert.ID)
	}

	t.Run("Should return a plain array with paging headers", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodGet, "/devices/tank-1/alerts?limit=2", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var alerts []models.Alert
		f.ParseResponse(resp, &alerts)
		require.Len(t, alerts, 2)
		assert.Equal(t, ids[2], alerts[0].ID)
		assert.Equal(t, "3", resp.Header().Get("X-Total-Count"))
		assert.Equal(t, "2", resp.Header().Get("X-Total-Pages"))
	})

	t.Run("Should resolve an alert", func(t *testing.T) {
		path := "/devices/tank-1/alerts/" + strconv.FormatUint(uint64(ids[0]), 10) + "/resolve"
		resp := f.ExecuteRequest(http.MethodPost, path, nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `{"message":"Alert resolved"}`, resp.Body.String())

		resp = f.ExecuteRequest(http.MethodGet, "/devices/tank-1/alerts?resolved=true", nil, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var alerts []models.Alert
		f.ParseResponse(resp, &alerts)
		require.Len(t, alerts, 1)
		assert.Equal(t, "dashboard", alerts[0].ResolvedBy)
	})

	t.Run("Should return not found for unknown alerts", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodPost, "/devices/tank-1/alerts/999/resolve", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)

		path := "/devices/tank-2/alerts/" + strconv.FormatUint(uint64(ids[1]), 10) + "/resolve"
		resp = f.ExecuteRequest(http.MethodPost, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("Should reject a non numeric alert id", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodPost, "/devices/tank-1/alerts/abc/resolve", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestCommandController(t *testing.T) {
	t.Run("Should be unavailable without a transport", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		resp := f.ExecuteRequest(http.MethodPost, "/commands", map[string]string{"device_id": "tank-1", "action": "PUMP_ON"}, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})

	t.Run("Should publish the command", func(t *testing.T) {
		publisher := &recordingPublisher{}
		f := newAPIFixture(t, publisher)

		resp := f.ExecuteRequest(http.MethodPost, "/commands", map[string]string{"device_id": "tank-1", "action": "PUMP_ON"}, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var body services.CommandResponse
		f.ParseResponse(resp, &body)
		assert.Equal(t, "success", body.Status)
		assert.NotEmpty(t, body.CommandID)
		assert.Equal(t, []string{"tank-1"}, publisher.devices)
		assert.Contains(t, string(publisher.payloads[0]), `"action":"PUMP_ON"`)
	})

	t.Run("Should require device and action", func(t *testing.T) {
		f := newAPIFixture(t, &recordingPublisher{})
		resp := f.ExecuteRequest(http.MethodPost, "/commands", map[string]string{"device_id": "tank-1"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestAuthController(t *testing.T) {
	f := newAPIFixture(t, nil)
	require.NoError(t, f.operators.EnsureAdmin(context.Background(), "admin", "s3cret-pass"))

	t.Run("Should issue a token", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "s3cret-pass"}, nil)
		require.Equal(t, http.StatusOK, resp.Code)

		var body services.LoginResponse
		f.ParseResponse(resp, &body)
		assert.NotEmpty(t, body.Token)
		assert.Equal(t, "admin", body.Operator.Username)
	})

	t.Run("Should reject bad credentials", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "nope"}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("Should require both fields", func(t *testing.T) {
		resp := f.ExecuteRequest(http.MethodPost, "/auth/login", map[string]string{"username": "admin"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}
