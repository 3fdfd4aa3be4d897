package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/HabitPipe/internal/store"
	"github.com/BTreeMap/HabitPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for HabitPipe state data
	DefaultStateDir = "/var/lib/habitbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "habitbot.db"
)

// Habit source backends selectable with --habit-source.
const (
	HabitSourceNotion = "notion"
	HabitSourceMemory = "memory"
)

// Config holds environment configuration. Flags registered in newRootCmd override it.
type Config struct {
	BotToken        string
	NotionAPIKey    string
	DatabaseURL     string
	StateDir        string
	RedisURL        string
	MongoURI        string
	APIAddr         string
	WebhookURL      string
	WebhookSecret   string
	RemindersToken  string
	DefaultTimezone string
	LogLevel        string
	Reminders       bool
	HabitSource     string
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		BotToken:        os.Getenv("HABIT_BOT_TOKEN"),
		NotionAPIKey:    os.Getenv("NOTION_API_KEY"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        util.GetEnvDefault("HABITBOT_STATE_DIR", DefaultStateDir),
		RedisURL:        os.Getenv("REDIS_URL"),
		MongoURI:        os.Getenv("MONGODB_URI"),
		APIAddr:         os.Getenv("API_ADDR"),
		WebhookURL:      os.Getenv("WEBHOOK_URL"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		RemindersToken:  os.Getenv("REMINDERS_TOKEN"),
		DefaultTimezone: os.Getenv("DEFAULT_TIMEZONE"),
		LogLevel:        util.GetEnvDefault("LOG_LEVEL", "info"),
		Reminders:       util.ParseBoolEnv("HABITBOT_REMINDERS", true),
		HabitSource:     HabitSourceNotion,
	}

	slog.Debug("environment variables loaded",
		"HABIT_BOT_TOKEN_SET", config.BotToken != "",
		"NOTION_API_KEY_SET", config.NotionAPIKey != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"HABITBOT_STATE_DIR", config.StateDir,
		"REDIS_URL_SET", config.RedisURL != "",
		"MONGODB_URI_SET", config.MongoURI != "",
		"API_ADDR", config.APIAddr,
		"WEBHOOK_URL", config.WebhookURL,
		"DEFAULT_TIMEZONE", config.DefaultTimezone,
		"HABITBOT_REMINDERS", config.Reminders)

	return config
}

// DSN returns DATABASE_URL, or the SQLite file in the state directory when unset.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("HABIT_BOT_TOKEN is required"))
	}
	switch c.HabitSource {
	case HabitSourceNotion:
		if c.NotionAPIKey == "" {
			errs = append(errs, errors.New("NOTION_API_KEY is required with --habit-source=notion"))
		}
	case HabitSourceMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown habit source %q (want %s or %s)", c.HabitSource, HabitSourceNotion, HabitSourceMemory))
	}
	if c.RedisURL != "" && c.MongoURI != "" {
		errs = append(errs, errors.New("set only one of REDIS_URL and MONGODB_URI"))
	}
	return errors.Join(errs...)
}

// parseLogLevel maps a level name to slog.Level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initializeLogger sets up structured logging at the given level
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// ensureDirectoriesExist creates the state directory and, for a file-based DSN, its parent.
func ensureDirectoriesExist(c Config) error {
	dirs := []string{c.StateDir}
	if store.DetectDSNType(c.DSN()) == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.DSN()))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
