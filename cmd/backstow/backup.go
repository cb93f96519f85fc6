package main

import (
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up every enabled element and apply retention",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := setup(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		return report(cmd, application.RunBackup(ctx))
	},
}
