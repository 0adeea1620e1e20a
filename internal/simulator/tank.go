// Package simulator produces synthetic tank readings for demos and load tests.
package simulator

import (
	"math"
	"math/rand"
	"time"

	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/services"
)

// Options tune the simulated household
type Options struct {
	DrawLMin    float64 // average consumption while water is used
	FillLMin    float64 // pump delivery rate
	LeakLMin    float64 // extra loss, zero for a healthy tank
	PumpOnBelow float64 // percent full at which the float switch starts the pump
	PumpOffAt   float64 // percent full at which the pump stops
	StartLevel  float64 // percent full at start
	TDSPPM      float64
	Seed        int64
}

// DefaultOptions is a small household on a 1000 L class tank
func DefaultOptions() Options {
	return Options{
		DrawLMin:    1.5,
		FillLMin:    20,
		PumpOnBelow: 30,
		PumpOffAt:   90,
		StartLevel:  70,
		TDSPPM:      350,
		Seed:        1,
	}
}

// Tank steps a single tank forward in time
type Tank struct {
	device *models.Device
	opts   Options
	rng    *rand.Rand
	level  float64
	pumpOn bool
	clock  time.Time
}

// NewTank starts a tank at opts.StartLevel at the given time
func NewTank(device *models.Device, opts Options, start time.Time) *Tank {
	return &Tank{
		device: device,
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		level:  device.TankHeightCm * opts.StartLevel / 100,
		clock:  start.UTC(),
	}
}

// Level returns the current water level in cm
func (t *Tank) Level() float64 {
	return t.level
}

// PumpOn reports whether the pump is running
func (t *Tank) PumpOn() bool {
	return t.pumpOn
}

// Step advances the tank by dt and returns the reading taken at the end of it
func (t *Tank) Step(dt time.Duration) services.TelemetryMessage {
	minutes := dt.Minutes()
	area := t.device.CrossSectionCm2()

	// Usage is bursty; draw varies between zero and twice the average
	draw := t.opts.DrawLMin * 2 * t.rng.Float64()
	liters := (t.opts.LeakLMin + draw) * minutes
	if t.pumpOn {
		liters -= t.opts.FillLMin * minutes
	}

	t.level -= liters * 1000 / area
	t.level = math.Max(0, math.Min(t.device.TankHeightCm, t.level))
	t.clock = t.clock.Add(dt)

	percent := t.level / t.device.TankHeightCm * 100
	switch {
	case percent <= t.opts.PumpOnBelow:
		t.pumpOn = true
	case percent >= t.opts.PumpOffAt:
		t.pumpOn = false
	}

	return t.reading(percent)
}

func (t *Tank) reading(percent float64) services.TelemetryMessage {
	pump := models.PumpOff
	flow := 0.0
	if t.pumpOn {
		pump = models.PumpOn
		flow = t.opts.FillLMin + t.rng.NormFloat64()*0.2
	}

	percent = round(percent, 1)
	return services.TelemetryMessage{
		DeviceID:     t.device.DeviceID,
		TS:           float64(t.clock.UnixNano()) / 1e9,
		LevelCm:      round(t.level, 2),
		TankHeightCm: t.device.TankHeightCm,
		PercentFull:  &percent,
		FlowLMin:     round(math.Max(0, flow), 2),
		PumpState:    pump,
		TemperatureC: round(24+t.rng.NormFloat64()*0.5, 1),
		TDSPPM:       round(t.opts.TDSPPM+t.rng.NormFloat64()*10, 0),
	}
}

// Record converts a reading into a stored telemetry row
func Record(msg services.TelemetryMessage) models.Telemetry {
	sec, frac := math.Modf(msg.TS)
	record := models.Telemetry{
		DeviceID:     msg.DeviceID,
		Timestamp:    time.Unix(int64(sec), int64(frac*1e9)).UTC(),
		LevelCm:      msg.LevelCm,
		TankHeightCm: msg.TankHeightCm,
		FlowLMin:     msg.FlowLMin,
		PumpState:    msg.PumpState,
		TemperatureC: msg.TemperatureC,
		TDSPPM:       msg.TDSPPM,
		LeakDetected: msg.LeakDetected,
	}
	if msg.PercentFull != nil {
		record.PercentFull = *msg.PercentFull
	}
	return record
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
