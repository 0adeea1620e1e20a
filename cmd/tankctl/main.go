// Command tankctl drives SmartAqua tanks from the terminal: simulated
// telemetry, demo history and pump commands.
package main

import (
	"fmt"
	"os"

	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/utils"
	"github.com/spf13/cobra"
)

var (
	configDir string
	deviceID  string

	rootCmd = &cobra.Command{
		Use:   "tankctl",
		Short: "SmartAqua tank tooling",
		Long:  "Publishes simulated tank telemetry, seeds demo history and sends pump commands using the backend configuration.",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "", "Directory containing config.yaml")
	rootCmd.PersistentFlags().StringVarP(&deviceID, "device", "d", "tank-001", "Device ID")

	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(commandCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and a logger shared by every subcommand
func setup() (*config.Config, *utils.Logger, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger.Named("tankctl"), nil
}
