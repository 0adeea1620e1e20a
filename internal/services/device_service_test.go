package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/testutil"
	"github.com/smart-aqua/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceService(t *testing.T) {
	ctx := context.Background()
	ts := testutil.NewTestSetup(t)
	defer ts.Cleanup()

	store := NewMemoryStatusStore()
	service := NewDeviceService(repository.NewRepositoryFactory(ts.DB.DB), store, ts.Config.Analysis, ts.Logger)

	now := time.Now().UTC()
	ts.SeedDevice("tank-b")
	require.NoError(t, store.Set(ctx, sampleStatus("tank-a", 120)))
	ts.SeedTelemetry(
		testutil.Reading("tank-a", now.Add(-30*time.Hour), 150),
		testutil.Reading("tank-a", now.Add(-2*time.Hour), 130),
		testutil.Reading("tank-a", now.Add(-time.Hour), 120),
	)

	t.Run("Should list cached and registered devices", func(t *testing.T) {
		list, err := service.ListDevices(ctx)
		require.NoError(t, err)

		assert.Equal(t, []string{"tank-a", "tank-b"}, list.Devices)
		assert.Equal(t, 2, list.TotalDevices)
	})

	t.Run("Should return the cached status", func(t *testing.T) {
		status, err := service.GetStatus(ctx, "tank-a")
		require.NoError(t, err)
		assert.Equal(t, 120.0, status.CurrentLevel)
	})

	t.Run("Should return a default status for silent devices", func(t *testing.T) {
		status, err := service.GetStatus(ctx, "tank-z")
		require.NoError(t, err)

		assert.Equal(t, "tank-z", status.DeviceID)
		assert.Zero(t, status.CurrentLevel)
		assert.Equal(t, 25.0, status.Temperature)
		assert.Nil(t, status.DaysUntilEmpty)
	})

	t.Run("Should return the telemetry window newest first", func(t *testing.T) {
		records, err := service.Telemetry(ctx, "tank-a", 0)
		require.NoError(t, err)

		require.Len(t, records, 2)
		assert.Equal(t, 120.0, records[0].LevelCm)
		assert.Equal(t, 130.0, records[1].LevelCm)

		records, err = service.Telemetry(ctx, "tank-a", 48)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("Should return an empty window for silent devices", func(t *testing.T) {
		records, err := service.Telemetry(ctx, "tank-z", 24)
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("Should derive capacity for the default calibration", func(t *testing.T) {
		cfg, err := service.GetConfig(ctx, "tank-z")
		require.NoError(t, err)

		assert.Equal(t, 150.0, cfg.TankHeightCm)
		assert.InDelta(t, 1178, cfg.CapacityLiters, 1)
	})

	t.Run("Should apply a partial calibration update", func(t *testing.T) {
		height := 200.0
		threshold := 2.5
		cfg, err := service.UpdateConfig(ctx, "tank-b", &DeviceConfigRequest{
			TankHeightCm:         &height,
			LeakThresholdPercent: &threshold,
		})
		require.NoError(t, err)

		assert.Equal(t, 200.0, cfg.TankHeightCm)
		assert.Equal(t, 100.0, cfg.TankDiameterCm)
		assert.Equal(t, 2.5, cfg.LeakThresholdPercent)

		stored, err := service.GetConfig(ctx, "tank-b")
		require.NoError(t, err)
		assert.Equal(t, 200.0, stored.TankHeightCm)
		assert.InDelta(t, 1570.8, stored.CapacityLiters, 0.1)
	})

	t.Run("Should register a device on first update", func(t *testing.T) {
		name := "Roof tank"
		_, err := service.UpdateConfig(ctx, "tank-c", &DeviceConfigRequest{Name: &name})
		require.NoError(t, err)

		stored, err := service.GetConfig(ctx, "tank-c")
		require.NoError(t, err)
		assert.Equal(t, "Roof tank", stored.Name)
	})

	t.Run("Should reject impossible dimensions", func(t *testing.T) {
		zero := 0.0
		_, err := service.UpdateConfig(ctx, "tank-b", &DeviceConfigRequest{TankDiameterCm: &zero})
		assert.True(t, errors.Is(err, utils.ErrValidation))
	})
}
