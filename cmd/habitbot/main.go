// Command habitbot runs the HabitPipe Telegram habit tracker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/HabitPipe/internal/api"
	"github.com/BTreeMap/HabitPipe/internal/lockfile"
)

func main() {
	initializeLogger("info")
	cfg := loadEnvironmentConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&cfg).ExecuteContext(ctx); err != nil {
		slog.Error("habitbot failed", "error", err)
		os.Exit(1)
	}
}

// newRootCmd builds the CLI. Flags default to the values already loaded into cfg.
func newRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "habitbot",
		Short:         "Telegram bot for tracking habits in a Notion database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initializeLogger(cfg.LogLevel)
			slog.Debug("flags parsed",
				"stateDir", cfg.StateDir,
				"dsnSet", cfg.DatabaseURL != "",
				"habitSource", cfg.HabitSource,
				"apiAddr", cfg.APIAddr,
				"reminders", cfg.Reminders)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for HabitPipe data (overrides $HABITBOT_STATE_DIR)")
	f.StringVar(&cfg.DatabaseURL, "db-dsn", cfg.DatabaseURL, "PostgreSQL DSN or SQLite path (overrides $DATABASE_URL)")
	f.StringVar(&cfg.HabitSource, "habit-source", cfg.HabitSource, "habit backend: notion or memory")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)")
	f.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "HTTP listen address (overrides $API_ADDR)")
	f.BoolVar(&cfg.Reminders, "reminders", cfg.Reminders, "run the hourly reminder sweep (overrides $HABITBOT_REMINDERS)")

	root.AddCommand(newServeCmd(cfg), newWebhookCmd(cfg), newRemindCmd(cfg), newReportCmd(cfg))
	return root
}

func newServeCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive updates with long polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), *cfg, "polling")
		},
	}
}

func newWebhookCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Receive updates on an HTTPS webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.WebhookURL == "" {
				return errors.New("--url or $WEBHOOK_URL is required")
			}
			return runBot(cmd.Context(), *cfg, "webhook")
		},
	}
	cmd.Flags().StringVar(&cfg.WebhookURL, "url", cfg.WebhookURL, "public webhook URL registered with Telegram (overrides $WEBHOOK_URL)")
	cmd.Flags().StringVar(&cfg.WebhookSecret, "secret", cfg.WebhookSecret, "webhook secret token (overrides $WEBHOOK_SECRET)")
	return cmd
}

func newRemindCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Run one reminder sweep for the current hour and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemind(cmd.Context(), *cfg, cmd.OutOrStdout())
		},
	}
}

func newReportCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Run one weekly report sweep for the current hour and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), *cfg, cmd.OutOrStdout())
		},
	}
}

// runBot serves updates in the given mode until ctx is cancelled.
func runBot(ctx context.Context, cfg Config, mode string) error {
	lock, err := lockfile.Acquire(cfg.StateDir, mode)
	if err != nil {
		return err
	}
	defer lock.Release()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.registerCommands()

	var apiOpts []api.Option
	switch mode {
	case "webhook":
		if err := a.telegram.SetWebhook(cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
		apiOpts = append(apiOpts, api.WithWebhook(a.telegram, cfg.WebhookSecret))
	default:
		// getUpdates fails while a webhook is registered.
		if err := a.telegram.DeleteWebhook(); err != nil {
			slog.Warn("Failed to delete webhook before polling", "error", err)
		}
		if err := a.telegram.Start(ctx); err != nil {
			return fmt.Errorf("start polling: %w", err)
		}
	}
	a.handler.Start(ctx)

	stopJobs, err := a.startJobs(ctx)
	if err != nil {
		return err
	}
	defer stopJobs()

	slog.Info("habitbot running", "mode", mode, "habitSource", cfg.HabitSource)
	if err := a.apiServer(apiOpts...).Run(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	slog.Info("habitbot exited successfully")
	return nil
}

// runRemind runs a single reminder sweep and prints its result as JSON.
func runRemind(ctx context.Context, cfg Config, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.dispatcher.Run(ctx, time.Now())
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

// runReport runs a single weekly report sweep and prints its result as JSON.
func runReport(ctx context.Context, cfg Config, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.reporter.Run(ctx, time.Now())
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
