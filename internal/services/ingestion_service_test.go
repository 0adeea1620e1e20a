package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/testutil"
	"github.com/smart-aqua/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestionFixture struct {
	ts        *testutil.TestSetup
	repos     *repository.RepositoryFactory
	store     *MemoryStatusStore
	notifier  *recordingNotifier
	alertSvc  *AlertService
	pump      *fakePump
	stream    *fakeStream
	ingestion *IngestionService
}

func newIngestionFixture(t *testing.T) *ingestionFixture {
	ts := testutil.NewTestSetup(t)
	t.Cleanup(ts.Cleanup)

	cfg := ts.Config.Analysis
	f := &ingestionFixture{
		ts:       ts,
		repos:    repository.NewRepositoryFactory(ts.DB.DB),
		store:    NewMemoryStatusStore(),
		notifier: &recordingNotifier{},
		pump:     &fakePump{},
		stream:   &fakeStream{},
	}

	f.alertSvc = NewAlertService(f.repos.Alert(), f.notifier, cfg, ts.Logger)
	t.Cleanup(f.alertSvc.Wait)

	ingestion, err := NewIngestionService(IngestionDeps{
		Repos:       f.repos,
		StatusStore: f.store,
		Analyzer:    NewConsumptionAnalyzer(f.repos.Telemetry(), ts.Logger),
		Detector:    NewDetector(f.repos.Telemetry(), cfg, ts.Logger),
		Alerts:      f.alertSvc,
		Pump:        f.pump,
		Stream:      f.stream,
	}, cfg, ts.Logger)
	require.NoError(t, err)
	f.ingestion = ingestion

	return f
}

func (f *ingestionFixture) alerts(t *testing.T, deviceID string) []models.Alert {
	alerts, _, err := f.repos.Alert().List(context.Background(), repository.AlertFilter{
		DeviceID: deviceID,
		Page:     utils.PaginationRequest{Page: 1, Limit: 100},
	})
	require.NoError(t, err)
	return alerts
}

func epoch(at time.Time) float64 {
	return float64(at.Unix())
}

func TestIngestionService_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("Should store the reading and publish a status", func(t *testing.T) {
		f := newIngestionFixture(t)
		at := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)

		status, err := f.ingestion.Ingest(ctx, &TelemetryMessage{
			DeviceID:     "tank-1",
			TS:           epoch(at),
			LevelCm:      120,
			TankHeightCm: 150,
			FlowLMin:     0,
			PumpState:    "off",
			TemperatureC: 24.5,
			TDSPPM:       300,
		})
		require.NoError(t, err)

		assert.Equal(t, "tank-1", status.DeviceID)
		assert.Equal(t, 120.0, status.CurrentLevel)
		assert.InDelta(t, 80.0, status.PercentFull, 1e-9)
		assert.False(t, status.PumpState)
		assert.True(t, at.Equal(status.LastUpdate))

		cached, ok, err := f.store.Get(ctx, "tank-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, *status, cached)

		latest, err := f.repos.Telemetry().Latest(ctx, "tank-1")
		require.NoError(t, err)
		assert.Equal(t, models.PumpOff, latest.PumpState)
		assert.Equal(t, 120.0, latest.LevelCm)

		_, err = f.repos.Device().Get(ctx, "tank-1")
		assert.NoError(t, err, "unknown devices are registered on first reading")

		assert.Equal(t, []string{"tank-1"}, f.stream.devices)
		assert.Empty(t, f.alerts(t, "tank-1"))
	})

	t.Run("Should fill in height and receive time when missing", func(t *testing.T) {
		f := newIngestionFixture(t)
		before := time.Now().UTC()

		status, err := f.ingestion.Ingest(ctx, &TelemetryMessage{DeviceID: "tank-1", LevelCm: 75, PumpState: "OFF"})
		require.NoError(t, err)

		assert.InDelta(t, 50.0, status.PercentFull, 1e-9)
		assert.False(t, status.LastUpdate.Before(before))
	})

	t.Run("Should reject malformed readings without storing them", func(t *testing.T) {
		f := newIngestionFixture(t)

		cases := map[string]*TelemetryMessage{
			"missing device":  {LevelCm: 10, PumpState: "OFF"},
			"negative level":  {DeviceID: "tank-1", LevelCm: -1, PumpState: "OFF"},
			"not a number":    {DeviceID: "tank-1", LevelCm: math.NaN(), PumpState: "OFF"},
			"unknown pump":    {DeviceID: "tank-1", LevelCm: 10, PumpState: "MAYBE"},
			"negative flow":   {DeviceID: "tank-1", LevelCm: 10, FlowLMin: -2, PumpState: "ON"},
			"infinite height": {DeviceID: "tank-1", LevelCm: 10, TankHeightCm: math.Inf(1), PumpState: "ON"},
			"negative share":  {DeviceID: "tank-1", LevelCm: 10, PercentFull: floatPtr(-1), PumpState: "OFF"},
			"share over full": {DeviceID: "tank-1", LevelCm: 10, PercentFull: floatPtr(101), PumpState: "OFF"},
		}

		for name, msg := range cases {
			_, err := f.ingestion.Ingest(ctx, msg)
			assert.True(t, errors.Is(err, utils.ErrValidation), name)
		}

		_, err := f.repos.Telemetry().Latest(ctx, "tank-1")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, ok, _ := f.store.Get(ctx, "tank-1")
		assert.False(t, ok)
	})

	t.Run("Should raise a leak on the large drop of a three day history", func(t *testing.T) {
		f := newIngestionFixture(t)
		now := time.Now().UTC().Truncate(time.Second)

		levels := []float64{150, 145, 100}
		for i, level := range levels {
			at := now.Add(time.Duration(i-len(levels)+1) * 24 * time.Hour)
			_, err := f.ingestion.Ingest(ctx, &TelemetryMessage{
				DeviceID:     "tank-1",
				TS:           epoch(at),
				LevelCm:      level,
				TankHeightCm: 150,
				PumpState:    "OFF",
				TDSPPM:       200,
			})
			require.NoError(t, err)
		}

		alerts := f.alerts(t, "tank-1")
		require.NotEmpty(t, alerts)

		newest := alerts[0]
		assert.Equal(t, models.AlertLeakDetected, newest.AlertType)
		assert.Equal(t, "Unexpected level drop of 30.0% detected", newest.Message)
		assert.Equal(t, 100.0, newest.LevelCm)
		assert.False(t, newest.Resolved)

		for _, alert := range alerts {
			assert.Equal(t, models.AlertLeakDetected, alert.AlertType)
		}
		f.alertSvc.Wait()
		assert.Len(t, f.notifier.Alerts(), len(alerts))

		status, ok, err := f.store.Get(ctx, "tank-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, testDevice("tank-1").LitersForLevelChange(50), status.ConsumptionWeek, 1e-6)
		require.NotNil(t, status.DaysUntilEmpty)
	})

	t.Run("Should stop the pump when the tank overflows", func(t *testing.T) {
		f := newIngestionFixture(t)

		_, err := f.ingestion.Ingest(ctx, &TelemetryMessage{
			DeviceID:     "tank-1",
			LevelCm:      145,
			TankHeightCm: 150,
			FlowLMin:     18,
			PumpState:    "ON",
		})
		require.NoError(t, err)

		assert.Equal(t, []pumpCall{{DeviceID: "tank-1", Reason: "overflow"}}, f.pump.Calls())

		alerts := f.alerts(t, "tank-1")
		require.Len(t, alerts, 1)
		assert.Equal(t, models.AlertOverflow, alerts[0].AlertType)
	})

	t.Run("Should use stored calibration for percent full", func(t *testing.T) {
		f := newIngestionFixture(t)
		require.NoError(t, f.repos.Device().Save(ctx, &models.Device{
			DeviceID:                 "tank-2",
			TankHeightCm:             200,
			TankDiameterCm:           80,
			LeakThresholdPercent:     1,
			OverflowThresholdPercent: 95,
			LowLevelPercent:          20,
		}))

		status, err := f.ingestion.Ingest(ctx, &TelemetryMessage{DeviceID: "tank-2", LevelCm: 50, PumpState: "OFF"})
		require.NoError(t, err)

		assert.InDelta(t, 25.0, status.PercentFull, 1e-9)
	})
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestIngestionService_Readings(t *testing.T) {
	ctx := context.Background()

	t.Run("Should read a level above the tank height as full", func(t *testing.T) {
		f := newIngestionFixture(t)

		status, err := f.ingestion.Ingest(ctx, &TelemetryMessage{DeviceID: "tank-1", LevelCm: 160, TankHeightCm: 150, PumpState: "OFF"})
		require.NoError(t, err)
		assert.Equal(t, 100.0, status.PercentFull)
	})

	t.Run("Should keep the newer status when a late reading arrives", func(t *testing.T) {
		f := newIngestionFixture(t)
		now := time.Now().UTC().Truncate(time.Second)

		_, err := f.ingestion.Ingest(ctx, &TelemetryMessage{
			DeviceID:     "tank-1",
			TS:           epoch(now),
			LevelCm:      75,
			TankHeightCm: 150,
			PumpState:    "OFF",
		})
		require.NoError(t, err)

		status, err := f.ingestion.Ingest(ctx, &TelemetryMessage{
			DeviceID:     "tank-1",
			TS:           epoch(now.Add(-10 * time.Minute)),
			LevelCm:      145,
			TankHeightCm: 150,
			FlowLMin:     18,
			PumpState:    "ON",
		})
		require.NoError(t, err)
		assert.Equal(t, 75.0, status.CurrentLevel)
		assert.True(t, now.Equal(status.LastUpdate))

		cached, ok, err := f.store.Get(ctx, "tank-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 75.0, cached.CurrentLevel)

		recent, err := f.repos.Telemetry().Recent(ctx, "tank-1", 10)
		require.NoError(t, err)
		assert.Len(t, recent, 2, "late readings are still stored")

		assert.Empty(t, f.pump.Calls(), "rules do not run on late readings")
		assert.Empty(t, f.alerts(t, "tank-1"))
		assert.Equal(t, []string{"tank-1", "tank-1"}, f.stream.devices)
	})
}

func TestIngestionService_HandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Should ingest a valid payload under the topic device id", func(t *testing.T) {
		f := newIngestionFixture(t)

		f.ingestion.HandleMessage(ctx, "tank-7", []byte(`{"device_id":"other","level_cm":90,"pump_state":"OFF","tds_ppm":150}`))

		status, ok, err := f.store.Get(ctx, "tank-7")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 90.0, status.CurrentLevel)

		_, ok, _ = f.store.Get(ctx, "other")
		assert.False(t, ok)
	})

	t.Run("Should drop payloads that fail the schema", func(t *testing.T) {
		f := newIngestionFixture(t)

		payloads := []string{
			`not json`,
			`{"pump_state":"OFF"}`,
			`{"level_cm":"high","pump_state":"OFF"}`,
			`{"level_cm":10,"pump_state":"SPINNING"}`,
			`{"level_cm":-5,"pump_state":"OFF"}`,
		}
		for i, payload := range payloads {
			f.ingestion.HandleMessage(ctx, fmt.Sprintf("tank-%d", i), []byte(payload))
		}

		ids, err := f.store.DeviceIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
