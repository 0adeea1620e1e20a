package main

import (
	"fmt"
	"strings"

	"github.com/smart-aqua/backend/internal/mqtt"
	"github.com/smart-aqua/backend/internal/services"
	"github.com/spf13/cobra"
)

func commandCmd() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "command ACTION",
		Short: "Publish a command such as PUMP_ON or PUMP_OFF to a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			parameters := make(map[string]interface{}, len(params))
			for _, p := range params {
				key, value, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("parameter %q is not key=value", p)
				}
				parameters[key] = value
			}

			client := mqtt.NewClient(&cfg.MQTT, logger)
			if err := client.Connect(cmd.Context()); err != nil {
				return err
			}
			defer client.Disconnect()

			commands := services.NewCommandService(client, nil, logger)
			resp, err := commands.Send(cmd.Context(), services.CommandRequest{
				DeviceID:   deviceID,
				Action:     strings.ToUpper(args[0]),
				Parameters: parameters,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (command_id %s)\n", resp.Message, resp.CommandID)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&params, "param", "p", nil, "Command parameter as key=value, repeatable")
	return cmd
}
