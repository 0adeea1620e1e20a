package services

import (
	"context"
	"testing"
	"time"

	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/testutil"
	"github.com/smart-aqua/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevice(deviceID string) *models.Device {
	return DefaultDevice(deviceID, testutil.TestConfig().Analysis)
}

func TestWindowConsumption(t *testing.T) {
	device := testDevice("tank-1")
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	t.Run("Should return zero for fewer than two readings", func(t *testing.T) {
		assert.Zero(t, WindowConsumption(nil, device))
		assert.Zero(t, WindowConsumption([]models.Telemetry{testutil.Reading("tank-1", base, 120)}, device))
	})

	t.Run("Should convert the net level drop to litres", func(t *testing.T) {
		records := []models.Telemetry{
			testutil.Reading("tank-1", base, 150),
			testutil.Reading("tank-1", base.Add(time.Hour), 145),
			testutil.Reading("tank-1", base.Add(2*time.Hour), 140),
		}

		// 10 cm over a 100 cm diameter tank
		assert.InDelta(t, 78.54, WindowConsumption(records, device), 0.01)
	})

	t.Run("Should count a net rise the same as a drop", func(t *testing.T) {
		records := []models.Telemetry{
			testutil.Reading("tank-1", base, 100),
			testutil.Reading("tank-1", base.Add(time.Hour), 110),
		}

		assert.InDelta(t, 78.54, WindowConsumption(records, device), 0.01)
	})
}

func TestDaysUntilEmpty(t *testing.T) {
	t.Run("Should return zero for an empty tank", func(t *testing.T) {
		days := DaysUntilEmpty(0, 1178, 70)
		require.NotNil(t, days)
		assert.Zero(t, *days)
	})

	t.Run("Should return nil without consumption", func(t *testing.T) {
		assert.Nil(t, DaysUntilEmpty(50, 1178, 0))
	})

	t.Run("Should divide remaining volume by the daily rate", func(t *testing.T) {
		days := DaysUntilEmpty(50, 1000, 70)
		require.NotNil(t, days)
		assert.InDelta(t, 50.0, *days, 1e-9)
	})
}

func TestTodayRecords(t *testing.T) {
	now := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)
	records := []models.Telemetry{
		testutil.Reading("tank-1", now.Add(-11*time.Hour), 150),
		testutil.Reading("tank-1", now.Add(-10*time.Hour), 148),
		testutil.Reading("tank-1", now.Add(-time.Hour), 146),
	}

	today := TodayRecords(records, now)

	require.Len(t, today, 2)
	assert.Equal(t, 148.0, today[0].LevelCm)
	assert.Equal(t, 146.0, today[1].LevelCm)
}

func TestConsumptionAnalyzer_Analyze(t *testing.T) {
	ts := testutil.NewTestSetup(t)
	defer ts.Cleanup()

	now := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	device := ts.SeedDevice("tank-1")
	ts.SeedTelemetry(
		testutil.Reading("tank-1", now.Add(-10*24*time.Hour), 40),
		testutil.Reading("tank-1", now.Add(-3*24*time.Hour), 150),
		testutil.Reading("tank-1", now.Add(-2*time.Hour), 140),
		testutil.Reading("tank-1", now.Add(-time.Hour), 135),
	)

	analyzer := NewConsumptionAnalyzer(repository.NewTelemetryRepository(ts.DB.DB), utils.NewNopLogger())
	analyzer.now = func() time.Time { return now }

	t.Run("Should ignore readings older than a week", func(t *testing.T) {
		report, err := analyzer.Analyze(context.Background(), device, 90)
		require.NoError(t, err)

		// 150 -> 135 over the week, 140 -> 135 today
		assert.InDelta(t, device.LitersForLevelChange(15), report.Week, 1e-6)
		assert.InDelta(t, device.LitersForLevelChange(5), report.Today, 1e-6)
		require.NotNil(t, report.DaysUntilEmpty)
		assert.Greater(t, *report.DaysUntilEmpty, 0.0)
	})

	t.Run("Should apply the report to a status", func(t *testing.T) {
		report, err := analyzer.Analyze(context.Background(), device, 90)
		require.NoError(t, err)

		status := report.Apply(models.DeviceStatus{DeviceID: "tank-1", PercentFull: 90})
		assert.Equal(t, report.Week, status.ConsumptionWeek)
		assert.Equal(t, report.Today, status.ConsumptionToday)
		assert.Equal(t, report.DaysUntilEmpty, status.DaysUntilEmpty)
	})

	t.Run("Should return zeros for an unknown device", func(t *testing.T) {
		report, err := analyzer.Analyze(context.Background(), testDevice("tank-9"), 50)
		require.NoError(t, err)

		assert.Zero(t, report.Week)
		assert.Zero(t, report.Today)
		assert.Nil(t, report.DaysUntilEmpty)
	})
}
