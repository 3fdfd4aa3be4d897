// Package store provides storage backends for HabitPipe.
//
// This file implements a PostgreSQL-backed store. Sessions live in sessions(chat_id, data JSONB).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/HabitPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// GetSession loads the raw session document for chatKey.
func (s *PostgresStore) GetSession(ctx context.Context, chatKey string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE chat_id = $1`, chatKey).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "chatKey", chatKey)
		return nil, fmt.Errorf("failed to load session for %s: %w", chatKey, err)
	}
	return data, nil
}

// SetSession upserts the session document for chatKey.
func (s *PostgresStore) SetSession(ctx context.Context, chatKey string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (chat_id, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (chat_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		chatKey, string(data), time.Now())
	if err != nil {
		slog.Error("PostgresStore SetSession failed", "error", err, "chatKey", chatKey)
		return fmt.Errorf("failed to save session for %s: %w", chatKey, err)
	}
	slog.Debug("PostgresStore SetSession succeeded", "chatKey", chatKey, "bytes", len(data))
	return nil
}

// DeleteSession removes the session for chatKey.
func (s *PostgresStore) DeleteSession(ctx context.Context, chatKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE chat_id = $1`, chatKey); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "chatKey", chatKey)
		return err
	}
	return nil
}

// GetOrCreateUser returns the user with telegramID, inserting it on first contact.
func (s *PostgresStore) GetOrCreateUser(ctx context.Context, telegramID, name string) (models.User, error) {
	now := time.Now()
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`INSERT INTO users (telegram_id, name, timezone, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id
		 RETURNING `+userColumns,
		telegramID, nilIfEmpty(name), models.DefaultTimezone, now))
	if err != nil {
		slog.Error("PostgresStore GetOrCreateUser failed", "error", err, "telegramID", telegramID)
		return models.User{}, fmt.Errorf("failed to get or create user %s: %w", telegramID, err)
	}
	return u, nil
}

func (s *PostgresStore) updateUser(ctx context.Context, column, telegramID, value string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = $1, updated_at = $2 WHERE telegram_id = $3`,
		value, time.Now(), telegramID)
	if err != nil {
		slog.Error("PostgresStore updateUser failed", "error", err, "column", column, "telegramID", telegramID)
		return fmt.Errorf("failed to update %s for user %s: %w", column, telegramID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetHabitDatabaseID stores the user's habit database id.
func (s *PostgresStore) SetHabitDatabaseID(ctx context.Context, telegramID, databaseID string) error {
	return s.updateUser(ctx, "habit_database_id", telegramID, databaseID)
}

// SetTimezone stores the user's IANA timezone.
func (s *PostgresStore) SetTimezone(ctx context.Context, telegramID, timezone string) error {
	return s.updateUser(ctx, "timezone", telegramID, timezone)
}

// ListUsers returns all users ordered by id.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
