package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var artifactName string

var restoreCmd = &cobra.Command{
	Use:   "restore [titles...]",
	Short: "Restore the latest artifact of the given elements, or of every enabled element",
	RunE: func(cmd *cobra.Command, args []string) error {
		if artifactName != "" && len(args) != 1 {
			return errors.New("--artifact needs exactly one element title")
		}

		ctx, cancel := signalContext()
		defer cancel()

		application, err := setup(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		return report(cmd, application.RunRestore(ctx, args, artifactName))
	},
}

func init() {
	restoreCmd.Flags().StringVarP(&artifactName, "artifact", "a", "", "restore this artifact name instead of the latest (see list)")
}
