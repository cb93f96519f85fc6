package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <title>",
	Short: "List the artifacts available to restore for an element, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		application, err := setup(ctx)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		artifacts, err := application.List(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(artifacts) == 0 {
			fmt.Fprintf(out, "no artifacts for %s\n", args[0])
			return nil
		}
		for _, a := range artifacts {
			fmt.Fprintf(out, "%-48s %10s  %s\n", a.Name, humanize.Bytes(uint64(a.Size)), humanize.Time(a.CreatedAt))
		}
		return nil
	},
}
