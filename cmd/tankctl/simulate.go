package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/kafka"
	"github.com/smart-aqua/backend/internal/mqtt"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/smart-aqua/backend/internal/simulator"
	"github.com/smart-aqua/backend/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// readingPublisher delivers one encoded reading
type readingPublisher func(ctx context.Context, deviceID string, payload []byte) error

func simulateCmd() *cobra.Command {
	var (
		transport string
		interval  time.Duration
		step      time.Duration
		count     int
		leak      float64
	)
	opts := simulator.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish simulated telemetry until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			publish, closeFn, err := newReadingPublisher(ctx, cfg, logger, transport)
			if err != nil {
				return err
			}
			defer closeFn()

			opts.LeakLMin = leak
			tank := simulator.NewTank(services.DefaultDevice(deviceID, cfg.Analysis), opts, time.Now())

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for sent := 0; count <= 0 || sent < count; sent++ {
				reading := tank.Step(step)
				reading.TS = float64(time.Now().UnixNano()) / 1e9

				payload, err := json.Marshal(reading)
				if err != nil {
					return fmt.Errorf("failed to encode reading: %w", err)
				}
				if err := publish(ctx, deviceID, payload); err != nil {
					logger.Warn("Failed to publish reading", zap.Error(err))
				} else {
					logger.Info("Reading published",
						zap.String("device_id", deviceID),
						zap.Float64("level_cm", reading.LevelCm),
						zap.String("pump_state", reading.PumpState))
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "mqtt", "Transport: mqtt or kafka")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Wall-clock time between readings")
	cmd.Flags().DurationVar(&step, "step", time.Minute, "Simulated time advanced per reading")
	cmd.Flags().IntVar(&count, "count", 0, "Number of readings, 0 runs until interrupted")
	cmd.Flags().Float64Var(&leak, "leak", 0, "Injected leak in L/min")
	cmd.Flags().Float64Var(&opts.DrawLMin, "draw", opts.DrawLMin, "Average household draw in L/min")
	cmd.Flags().Float64Var(&opts.TDSPPM, "tds", opts.TDSPPM, "Average TDS in ppm")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	return cmd
}

func newReadingPublisher(ctx context.Context, cfg *config.Config, logger *utils.Logger, transport string) (readingPublisher, func(), error) {
	switch transport {
	case "mqtt":
		client := mqtt.NewClient(&cfg.MQTT, logger)
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return client.PublishTelemetry, client.Disconnect, nil

	case "kafka":
		producer, err := kafka.NewProducer(&cfg.Kafka, "tankctl", logger)
		if err != nil {
			return nil, nil, err
		}
		publish := func(_ context.Context, deviceID string, payload []byte) error {
			return producer.ProduceRaw(kafka.TopicTelemetryIntake, deviceID, payload, nil)
		}
		return publish, producer.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q", transport)
	}
}
