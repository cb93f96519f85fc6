package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semmidev/backstow/internal/app"
	"github.com/semmidev/backstow/internal/config"
	"github.com/semmidev/backstow/internal/domain"
	"github.com/semmidev/backstow/internal/infrastructure/logger"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "backstow",
		Short: "Back up and restore databases and directories",
		Long: `backstow captures the databases and directories listed in a JSON
settings file, keeps them locally and in object storage, enforces
retention in both places and restores them on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "settings.json", "path to JSON settings file")

	rootCmd.AddCommand(backupCmd, restoreCmd, listCmd, scheduleCmd, versionCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// setup loads the settings and wires the application. The caller owns
// Shutdown.
func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configFile)
	if errors.Is(err, config.ErrNoElements) {
		for _, rejected := range cfg.Rejected {
			fmt.Fprintf(os.Stderr, "rejected: %v\n", rejected)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.App)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("initialize app: %w", err)
	}
	return application, nil
}

// report prints one line per outcome and turns a failed run into an
// error naming the failed elements.
func report(cmd *cobra.Command, result domain.RunResult) error {
	out := cmd.OutOrStdout()
	for _, o := range result.Outcomes {
		line := fmt.Sprintf("%-8s %-24s %-8s", o.Status, o.Title, o.Phase)
		switch {
		case o.Err != nil:
			line += " " + o.Reason()
		case o.Artifact != nil:
			line += " " + o.Artifact.Name
		case len(o.Deletions) > 0:
			line += fmt.Sprintf(" %d deleted", len(o.Deletions))
		}
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}

	if failed := result.FailedTitles(); len(failed) > 0 {
		return fmt.Errorf("%s run %s failed for: %s", result.Mode, result.RunID, strings.Join(failed, ", "))
	}
	return nil
}
