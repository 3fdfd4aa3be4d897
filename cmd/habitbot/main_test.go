package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/HabitPipe/internal/habitsource/memory"
	"github.com/BTreeMap/HabitPipe/internal/messaging"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/reminder"
	"github.com/BTreeMap/HabitPipe/internal/report"
	"github.com/BTreeMap/HabitPipe/internal/store"
	"github.com/BTreeMap/HabitPipe/internal/testutil"
)

var configEnvKeys = []string{
	"HABIT_BOT_TOKEN", "NOTION_API_KEY", "DATABASE_URL", "HABITBOT_STATE_DIR", "REDIS_URL",
	"MONGODB_URI", "API_ADDR", "WEBHOOK_URL", "WEBHOOK_SECRET", "REMINDERS_TOKEN",
	"DEFAULT_TIMEZONE", "LOG_LEVEL", "HABITBOT_REMINDERS",
}

// clearConfigEnv blanks every config variable for the test; blank counts as unset.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg := loadEnvironmentConfig()
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
	assert.Equal(t, filepath.Join(DefaultStateDir, DefaultDBFileName), cfg.DSN())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, HabitSourceNotion, cfg.HabitSource)
	assert.True(t, cfg.Reminders)
}

func TestLoadEnvironmentConfigFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HABIT_BOT_TOKEN", "123:abc")
	t.Setenv("NOTION_API_KEY", "secret_x")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/habits")
	t.Setenv("HABITBOT_STATE_DIR", "/tmp/habits")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("WEBHOOK_URL", "https://bot.example.com/telegram/webhook")
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	t.Setenv("DEFAULT_TIMEZONE", "Europe/Berlin")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HABITBOT_REMINDERS", "off")

	cfg := loadEnvironmentConfig()
	assert.Equal(t, "123:abc", cfg.BotToken)
	assert.Equal(t, "secret_x", cfg.NotionAPIKey)
	assert.Equal(t, "postgres://u:p@localhost/habits", cfg.DSN())
	assert.Equal(t, "/tmp/habits", cfg.StateDir)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "https://bot.example.com/telegram/webhook", cfg.WebhookURL)
	assert.Equal(t, "s3cret", cfg.WebhookSecret)
	assert.Equal(t, "Europe/Berlin", cfg.DefaultTimezone)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Reminders)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{BotToken: "t", NotionAPIKey: "k", HabitSource: HabitSourceNotion}
	require.NoError(t, valid.Validate())

	memoryOnly := Config{BotToken: "t", HabitSource: HabitSourceMemory}
	require.NoError(t, memoryOnly.Validate())

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing token", Config{NotionAPIKey: "k", HabitSource: HabitSourceNotion}, "HABIT_BOT_TOKEN"},
		{"missing notion key", Config{BotToken: "t", HabitSource: HabitSourceNotion}, "NOTION_API_KEY"},
		{"unknown source", Config{BotToken: "t", HabitSource: "sheets"}, "unknown habit source"},
		{"two session stores", Config{BotToken: "t", HabitSource: HabitSourceMemory, RedisURL: "redis://x", MongoURI: "mongodb://x"}, "only one"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel(" error "))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestEnsureDirectoriesExist(t *testing.T) {
	base := t.TempDir()
	cfg := Config{StateDir: filepath.Join(base, "state"), DatabaseURL: filepath.Join(base, "db", "habits.db")}
	require.NoError(t, ensureDirectoriesExist(cfg))

	for _, dir := range []string{cfg.StateDir, filepath.Join(base, "db")} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestRootFlagsOverrideEnvironment(t *testing.T) {
	cfg := Config{StateDir: "/env/state", HabitSource: HabitSourceNotion, LogLevel: "info", Reminders: true}
	root := newRootCmd(&cfg)

	err := root.PersistentFlags().Parse([]string{
		"--state-dir", "/flag/state",
		"--habit-source", "memory",
		"--log-level", "debug",
		"--api-addr", ":9090",
		"--reminders=false",
	})
	require.NoError(t, err)
	assert.Equal(t, "/flag/state", cfg.StateDir)
	assert.Equal(t, HabitSourceMemory, cfg.HabitSource)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.APIAddr)
	assert.False(t, cfg.Reminders)
}

func TestRootCommands(t *testing.T) {
	cfg := Config{}
	root := newRootCmd(&cfg)
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "webhook", "remind", "report"}, names)

	webhook, _, err := root.Find([]string{"webhook"})
	require.NoError(t, err)
	assert.NotNil(t, webhook.Flags().Lookup("url"))
	assert.NotNil(t, webhook.Flags().Lookup("secret"))
}

func TestWebhookRequiresURL(t *testing.T) {
	cfg := Config{StateDir: t.TempDir(), HabitSource: HabitSourceMemory}
	root := newRootCmd(&cfg)
	root.SetArgs([]string{"webhook"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "WEBHOOK_URL"))
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	_, err := newApp(context.Background(), Config{HabitSource: HabitSourceMemory, StateDir: t.TempDir()})
	require.Error(t, err)

	_, err = newApp(context.Background(), Config{BotToken: "t", HabitSource: HabitSourceMemory, StateDir: t.TempDir(), DefaultTimezone: "Mars/Olympus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_TIMEZONE")
	assert.Equal(t, "America/New_York", models.DefaultTimezone)
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := Config{StateDir: t.TempDir()}
	st, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer st.Close()

	_, ok := st.(*store.SQLiteStore)
	assert.True(t, ok, "expected a SQLite store, got %T", st)

	u, err := st.GetOrCreateUser(context.Background(), "1", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "1", u.TelegramID)
}

func TestNewHabitSources(t *testing.T) {
	f, err := newHabitSources(Config{HabitSource: HabitSourceMemory})
	require.NoError(t, err)
	src, err := f.ForUser(models.User{TelegramID: "1", HabitDatabaseID: "db"})
	require.NoError(t, err)
	habits, err := src.GetHabits(context.Background())
	require.NoError(t, err)
	assert.Empty(t, habits)

	f, err = newHabitSources(Config{HabitSource: HabitSourceNotion, NotionAPIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, f)

	_, err = newHabitSources(Config{HabitSource: "csv"})
	assert.Error(t, err)
}

func TestStartJobs(t *testing.T) {
	for _, reminders := range []bool{true, false} {
		a := &app{cfg: Config{Reminders: reminders}, store: store.NewInMemoryStore()}
		stop, err := a.startJobs(context.Background())
		require.NoError(t, err)
		require.NotNil(t, stop)
		stop()
	}
}

func TestRunSweeps(t *testing.T) {
	st := store.NewInMemoryStore()
	registry := memory.NewRegistry()
	sender := messaging.NewMockService()
	sources := memory.NewFactory(registry)

	testutil.SeedUser(t, st, "7", "UTC", "db")
	h := testutil.SeedHabit(t, registry, "db", "Pushups", "💪", models.HabitTypeNumber, report.ReportHour)
	n := 4.0
	registry.Get("db").AddPage(models.TodayPage{Index: 1, Date: "2024-06-10", Values: map[string]models.PageValue{h.FullName: {Type: models.HabitTypeNumber, Number: &n}}})

	a := &app{
		store:      st,
		dispatcher: reminder.NewDispatcher(st, sources, sender),
		reporter:   report.NewReporter(st, sources, sender),
	}
	a.runSweeps(context.Background(), time.Date(2024, 6, 10, report.ReportHour, 0, 0, 0, time.UTC))

	sent := sender.SentTo("7")
	require.Len(t, sent, 2)
	assert.Equal(t, "Reminder for habit: 💪 Pushups", sent[0])
	assert.Contains(t, sent[1], "Weekly Habit Report")
}

func TestPruneInbound(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	a := &app{store: st}

	_, err := st.RecordInbound(ctx, "1", "42")
	require.NoError(t, err)
	require.NoError(t, st.MarkProcessed(ctx, "1"))
	_, err = st.RecordInbound(ctx, "2", "42")
	require.NoError(t, err)

	a.pruneInbound(ctx, time.Now())
	dup, _ := st.IsDuplicate(ctx, "1")
	assert.True(t, dup, "records inside the retention window are kept")

	a.pruneInbound(ctx, time.Now().Add(store.DefaultDedupRetention+time.Hour))
	dup, _ = st.IsDuplicate(ctx, "1")
	assert.False(t, dup, "processed record past retention is pruned")
	dup, _ = st.IsDuplicate(ctx, "2")
	assert.True(t, dup, "unprocessed record is kept")
}
