package main

import (
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the backup cycle on the configured cron schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := setup(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		return application.Schedule(ctx)
	},
}
