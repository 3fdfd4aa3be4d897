package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/HabitPipe/internal/api"
	"github.com/BTreeMap/HabitPipe/internal/flow"
	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/habitsource/memory"
	"github.com/BTreeMap/HabitPipe/internal/habitsource/notion"
	"github.com/BTreeMap/HabitPipe/internal/messaging"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/reminder"
	"github.com/BTreeMap/HabitPipe/internal/report"
	"github.com/BTreeMap/HabitPipe/internal/scheduler"
	"github.com/BTreeMap/HabitPipe/internal/store"
	"github.com/BTreeMap/HabitPipe/internal/util"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg        Config
	store      store.Store
	telegram   *messaging.TelegramService
	handler    *messaging.UpdateHandler
	dispatcher *reminder.Dispatcher
	reporter   *report.Reporter
}

// openStore opens the SQL store for users and dedup, routing sessions to Redis or MongoDB when
// configured.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	dsn := cfg.DSN()
	var base store.Store
	var err error
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		base, err = store.NewPostgresStore(store.WithPostgresDSN(dsn))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
		base, err = store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var sessions store.SessionStore
	switch {
	case cfg.RedisURL != "":
		sessions, err = store.NewRedisSessionStore(ctx, cfg.RedisURL)
	case cfg.MongoURI != "":
		sessions, err = store.NewMongoSessionStore(ctx, cfg.MongoURI, "")
	default:
		return base, nil
	}
	if err != nil {
		_ = base.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	slog.Info("Sessions routed to external store", "redis", cfg.RedisURL != "", "mongo", cfg.MongoURI != "")
	return store.NewComposite(base, sessions), nil
}

// newHabitSources builds the habit source factory for cfg.HabitSource.
func newHabitSources(cfg Config) (habitsource.Factory, error) {
	opts := []habitsource.Option{habitsource.WithWriteLocks(util.NewKeyedMutex())}
	switch cfg.HabitSource {
	case HabitSourceNotion:
		return notion.NewFactory(notion.NewClient(cfg.NotionAPIKey), opts...), nil
	case HabitSourceMemory:
		slog.Warn("Using the in-memory habit source; habits are lost on restart")
		return memory.NewFactory(memory.NewRegistry(), opts...), nil
	default:
		return nil, fmt.Errorf("unknown habit source %q", cfg.HabitSource)
	}
}

// newApp validates cfg and wires every component. The caller must call Close.
func newApp(ctx context.Context, cfg Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DefaultTimezone != "" {
		if !flow.ValidTimezone(cfg.DefaultTimezone) {
			return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE %q", cfg.DefaultTimezone)
		}
		models.DefaultTimezone = cfg.DefaultTimezone
	}
	if err := ensureDirectoriesExist(cfg); err != nil {
		return nil, err
	}

	sources, err := newHabitSources(cfg)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	tg, err := messaging.NewTelegramService(cfg.BotToken, messaging.WithDebug(parseLogLevel(cfg.LogLevel) == slog.LevelDebug))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("connect to Telegram: %w", err)
	}

	engine := flow.NewHabitEngine(flow.WithUserStore(st))
	handler := messaging.NewUpdateHandler(tg, engine, flow.NewSessionManager(st), st, sources,
		messaging.WithDedup(st),
		messaging.WithChatLocks(util.NewKeyedMutex()),
	)

	return &app{
		cfg:        cfg,
		store:      st,
		telegram:   tg,
		handler:    handler,
		dispatcher: reminder.NewDispatcher(st, sources, tg),
		reporter:   report.NewReporter(st, sources, tg),
	}, nil
}

// PruneExpr runs the dedup cleanup once a day.
const PruneExpr = "17 4 * * *"

// startJobs schedules the dedup cleanup and, when enabled, the hourly reminder and weekly report
// sweeps. The returned stop function is never nil on success.
func (a *app) startJobs(ctx context.Context) (func(), error) {
	sched := scheduler.NewScheduler()
	err := sched.AddJob(PruneExpr, func() { a.pruneInbound(ctx, time.Now()) })
	if err == nil && a.cfg.Reminders {
		err = sched.AddJob(scheduler.HourlyExpr, func() {
			a.runSweeps(ctx, time.Now())
		})
	}
	if err != nil {
		sched.Stop()
		return nil, fmt.Errorf("schedule jobs: %w", err)
	}
	slog.Info("Background jobs scheduled", "jobs", sched.Len(), "reminders", a.cfg.Reminders, "next", sched.Next())
	return sched.Stop, nil
}

// runSweeps sends the reminders and reports due at now.
func (a *app) runSweeps(ctx context.Context, now time.Time) {
	if _, err := a.dispatcher.Run(ctx, now); err != nil {
		slog.Error("Scheduled reminder sweep failed", "error", err)
	}
	if _, err := a.reporter.Run(ctx, now); err != nil {
		slog.Error("Scheduled report sweep failed", "error", err)
	}
}

func (a *app) pruneInbound(ctx context.Context, now time.Time) {
	n, err := a.store.PruneInbound(ctx, now.Add(-store.DefaultDedupRetention))
	if err != nil {
		slog.Error("Failed to prune inbound update records", "error", err)
		return
	}
	slog.Info("Pruned inbound update records", "deleted", n)
}

// apiServer builds the HTTP server with the sweep triggers and any extra options.
func (a *app) apiServer(opts ...api.Option) *api.Server {
	all := append([]api.Option{
		api.WithAddr(a.cfg.APIAddr),
		api.WithReminders(a.dispatcher, a.cfg.RemindersToken),
		api.WithReports(a.reporter),
	}, opts...)
	return api.NewServer(all...)
}

// registerCommands publishes the command menu; failures are not fatal.
func (a *app) registerCommands() {
	if err := a.telegram.SetCommands(flow.Commands()); err != nil {
		slog.Warn("Failed to register bot commands", "error", err)
	}
}

func (a *app) Close() error {
	var errs []error
	if err := a.telegram.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
