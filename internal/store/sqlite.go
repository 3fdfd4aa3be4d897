// Package store provides storage backends for HabitPipe.
//
// This file implements an SQLite-backed store for sessions, users and inbound dedup.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/HabitPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between concurrent chats.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetSession loads the raw session document for chatKey.
func (s *SQLiteStore) GetSession(ctx context.Context, chatKey string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE chat_id = ?`, chatKey).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "chatKey", chatKey)
		return nil, fmt.Errorf("failed to load session for %s: %w", chatKey, err)
	}
	return []byte(data), nil
}

// SetSession stores the session document for chatKey, replacing any previous one.
func (s *SQLiteStore) SetSession(ctx context.Context, chatKey string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (chat_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		chatKey, string(data), time.Now())
	if err != nil {
		slog.Error("SQLiteStore SetSession failed", "error", err, "chatKey", chatKey)
		return fmt.Errorf("failed to save session for %s: %w", chatKey, err)
	}
	slog.Debug("SQLiteStore SetSession succeeded", "chatKey", chatKey, "bytes", len(data))
	return nil
}

// DeleteSession removes the session for chatKey.
func (s *SQLiteStore) DeleteSession(ctx context.Context, chatKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE chat_id = ?`, chatKey); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "chatKey", chatKey)
		return err
	}
	return nil
}

const userColumns = `id, telegram_id, name, timezone, habit_database_id, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (models.User, error) {
	var u models.User
	var name, dbID sql.NullString
	err := row.Scan(&u.ID, &u.TelegramID, &name, &u.Timezone, &dbID, &u.CreatedAt, &u.UpdatedAt)
	u.Name = name.String
	u.HabitDatabaseID = dbID.String
	return u, err
}

// GetOrCreateUser returns the user with telegramID, inserting it on first contact.
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, telegramID, name string) (models.User, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (telegram_id, name, timezone, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		telegramID, nilIfEmpty(name), models.DefaultTimezone, now, now)
	if err != nil {
		slog.Error("SQLiteStore GetOrCreateUser insert failed", "error", err, "telegramID", telegramID)
		return models.User{}, fmt.Errorf("failed to create user %s: %w", telegramID, err)
	}
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID))
	if err != nil {
		slog.Error("SQLiteStore GetOrCreateUser select failed", "error", err, "telegramID", telegramID)
		return models.User{}, fmt.Errorf("failed to load user %s: %w", telegramID, err)
	}
	return u, nil
}

func (s *SQLiteStore) updateUser(ctx context.Context, column, telegramID, value string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE telegram_id = ?`,
		value, time.Now(), telegramID)
	if err != nil {
		slog.Error("SQLiteStore updateUser failed", "error", err, "column", column, "telegramID", telegramID)
		return fmt.Errorf("failed to update %s for user %s: %w", column, telegramID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	slog.Debug("SQLiteStore updateUser succeeded", "column", column, "telegramID", telegramID)
	return nil
}

// SetHabitDatabaseID stores the user's habit database id.
func (s *SQLiteStore) SetHabitDatabaseID(ctx context.Context, telegramID, databaseID string) error {
	return s.updateUser(ctx, "habit_database_id", telegramID, databaseID)
}

// SetTimezone stores the user's IANA timezone.
func (s *SQLiteStore) SetTimezone(ctx context.Context, telegramID, timezone string) error {
	return s.updateUser(ctx, "timezone", telegramID, timezone)
}

// ListUsers returns all users ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			slog.Error("SQLiteStore ListUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	slog.Debug("SQLiteStore ListUsers succeeded", "count", len(users))
	return users, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
