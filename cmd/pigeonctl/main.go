// Package main provides pigeonctl, the operator CLI for the notification
// pipeline.
//
// Usage:
//
//	pigeonctl deploy [--force] [--dry-run]
//	pigeonctl dispatch [--notification ID] [--max-retries N]
//	pigeonctl kill
//	pigeonctl migrate
//
// Configuration is read from the environment exactly as the server reads it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/app"
	"github.com/ricirt/pigeonpost/internal/config"
	"github.com/ricirt/pigeonpost/internal/db"
	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/logging"
	"github.com/ricirt/pigeonpost/internal/worker"
)

var version = "dev"

// exitTempFail is EX_TEMPFAIL from sysexits.h: another deploy holds the lock.
const exitTempFail = 75

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, domain.ErrConcurrentRun):
		return exitTempFail
	default:
		return 1
	}
}

// env carries what every subcommand needs once PersistentPreRunE has run.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "pigeonctl",
		Short:         "Operate the pigeonpost notification pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			e.cfg, e.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}

	rootCmd.AddCommand(
		newDeployCmd(e),
		newDispatchCmd(e),
		newKillCmd(e),
		newMigrateCmd(e),
	)
	return rootCmd
}

func newDeployCmd(e *env) *cobra.Command {
	var opts worker.DeployOptions

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Process the queue and dispatch the outbox once",
		Long: `Process every due notification into the outbox, then attempt delivery of
every undelivered entry. The run is guarded by a cross-process lock; if
another run holds it, deploy exits immediately with status 75.

Example:
  pigeonctl deploy --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), e, func(a *app.App) error {
				report, err := a.Deployer.Deploy(cmd.Context(), opts)
				printDeploy(cmd.OutOrStdout(), report, opts.DryRun)
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Ignore scheduled_for and process deferred notifications now")
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "Render and log messages without touching the queue or the outbox")

	return cmd
}

func newDispatchCmd(e *env) *cobra.Command {
	var (
		opts         worker.DispatchOptions
		notification string
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Attempt delivery of undelivered outbox entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), e, func(a *app.App) error {
				if notification != "" {
					opts.NotificationID = &notification
				}
				if opts.MaxRetries == 0 {
					opts.MaxRetries = e.cfg.MaxRetries
				}
				report, err := a.Dispatcher.Dispatch(cmd.Context(), opts)
				fmt.Fprintf(cmd.OutOrStdout(), "dispatch: selected=%d sent=%d failed=%d\n",
					report.Selected, report.Sent, report.Failed)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&notification, "notification", "", "Only dispatch entries created from this notification")
	cmd.Flags().IntVar(&opts.MaxRetries, "max-retries", 0, "Skip entries that failed this many times (default MAX_RETRIES)")

	return cmd
}

func newKillCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Cancel every pending notification",
		Long: `Mark every pending notification as processed without rendering it.
Outbox entries that were already staged are left alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), e, func(a *app.App) error {
				n, err := a.Service.CancelAllPending(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d pending notifications\n", n)
				return nil
			})
		},
	}
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.Migrate(e.cfg.DatabaseURL); err != nil {
				return err
			}
			e.logger.Info("database migrations applied")
			return nil
		},
	}
}

func withApp(ctx context.Context, e *env, fn func(*app.App) error) error {
	a, err := app.Open(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printDeploy(w io.Writer, r worker.DeployReport, dryRun bool) {
	q := r.Queue
	fmt.Fprintf(w, "queue: selected=%d completed=%d terminal=%d entries=%d duplicates=%d declined=%d render_failures=%d over_limit=%d\n",
		q.Selected, q.Completed, q.Terminal, q.EntriesCreated, q.Duplicates, q.Declined, q.RenderFailures, q.OverLimit)
	if dryRun {
		fmt.Fprintln(w, "dispatch: skipped (dry run)")
		return
	}
	d := r.Dispatch
	fmt.Fprintf(w, "dispatch: selected=%d sent=%d failed=%d\n", d.Selected, d.Sent, d.Failed)
}
