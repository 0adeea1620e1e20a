package main

import (
	"fmt"
	"time"

	"github.com/smart-aqua/backend/internal/db"
	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/smart-aqua/backend/internal/db/repository"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/smart-aqua/backend/internal/simulator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const seedBatchSize = 500

func seedCmd() *cobra.Command {
	var (
		days int
		step time.Duration
	)
	opts := simulator.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write simulated history into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if days <= 0 || step <= 0 {
				return fmt.Errorf("days and step must be positive")
			}

			database, err := db.NewDatabase(&cfg.Database, logger)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := database.AutoMigrate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			repos := repository.NewRepositoryFactory(database.DB)
			device, err := repos.Device().GetOrCreate(ctx, services.DefaultDevice(deviceID, cfg.Analysis))
			if err != nil {
				return fmt.Errorf("failed to register device: %w", err)
			}

			start := time.Now().UTC().AddDate(0, 0, -days)
			tank := simulator.NewTank(device, opts, start)
			total := int(time.Duration(days) * 24 * time.Hour / step)

			batch := make([]models.Telemetry, 0, seedBatchSize)
			for i := 0; i < total; i++ {
				batch = append(batch, simulator.Record(tank.Step(step)))
				if len(batch) == seedBatchSize || i == total-1 {
					if err := repos.Telemetry().InsertBatch(ctx, batch); err != nil {
						return fmt.Errorf("failed to insert telemetry: %w", err)
					}
					batch = batch[:0]
				}
			}

			logger.Info("History seeded",
				zap.String("device_id", deviceID),
				zap.Int("records", total),
				zap.Time("from", start))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 14, "Days of history to generate")
	cmd.Flags().DurationVar(&step, "step", 15*time.Minute, "Time between readings")
	cmd.Flags().Float64Var(&opts.DrawLMin, "draw", opts.DrawLMin, "Average household draw in L/min")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	return cmd
}
