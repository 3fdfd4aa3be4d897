// Package store provides storage backends for HabitPipe.
//
// It persists three things: the per-chat session document, the bot users, and the inbound
// update ids used for deduplication. SQLite and PostgreSQL stores hold all three; Redis and
// MongoDB stores hold sessions only and are combined with another store for the rest.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// ErrUserNotFound is returned when updating a user that was never created.
var ErrUserNotFound = errors.New("user not found")

// SessionStore persists one opaque session document per chat key.
type SessionStore interface {
	// GetSession returns nil, nil when no session is stored for chatKey.
	GetSession(ctx context.Context, chatKey string) ([]byte, error)
	// SetSession overwrites the session for chatKey.
	SetSession(ctx context.Context, chatKey string, data []byte) error
	DeleteSession(ctx context.Context, chatKey string) error
}

// UserStore persists bot users keyed by their Telegram id.
type UserStore interface {
	// GetOrCreateUser returns the user, creating it with the default timezone on first contact.
	GetOrCreateUser(ctx context.Context, telegramID, name string) (models.User, error)
	SetHabitDatabaseID(ctx context.Context, telegramID, databaseID string) error
	SetTimezone(ctx context.Context, telegramID, timezone string) error
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Store is the full persistence surface used by the bot.
type Store interface {
	SessionStore
	UserStore
	DedupRepo
	Close() error
}

// Opts holds configuration for SQL stores.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// Composite serves sessions from one store and everything else from another.
type Composite struct {
	SessionStore
	Base Store
}

// NewComposite routes session calls to sessions and all other calls to base.
func NewComposite(base Store, sessions SessionStore) *Composite {
	return &Composite{SessionStore: sessions, Base: base}
}

func (c *Composite) GetOrCreateUser(ctx context.Context, telegramID, name string) (models.User, error) {
	return c.Base.GetOrCreateUser(ctx, telegramID, name)
}

func (c *Composite) SetHabitDatabaseID(ctx context.Context, telegramID, databaseID string) error {
	return c.Base.SetHabitDatabaseID(ctx, telegramID, databaseID)
}

func (c *Composite) SetTimezone(ctx context.Context, telegramID, timezone string) error {
	return c.Base.SetTimezone(ctx, telegramID, timezone)
}

func (c *Composite) ListUsers(ctx context.Context) ([]models.User, error) {
	return c.Base.ListUsers(ctx)
}

func (c *Composite) IsDuplicate(ctx context.Context, updateID string) (bool, error) {
	return c.Base.IsDuplicate(ctx, updateID)
}

func (c *Composite) RecordInbound(ctx context.Context, updateID, chatKey string) (bool, error) {
	return c.Base.RecordInbound(ctx, updateID, chatKey)
}

func (c *Composite) MarkProcessed(ctx context.Context, updateID string) error {
	return c.Base.MarkProcessed(ctx, updateID)
}

func (c *Composite) PruneInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	return c.Base.PruneInbound(ctx, cutoff)
}

func (c *Composite) Close() error {
	var errs []error
	if closer, ok := c.SessionStore.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, c.Base.Close())
	return errors.Join(errs...)
}

// InMemoryStore is a simple in-memory Store for tests and ephemeral runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	users    map[string]models.User
	nextID   int64
	inbound  map[string]DedupRecord
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]byte),
		users:    make(map[string]models.User),
		inbound:  make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) GetSession(ctx context.Context, chatKey string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[chatKey]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (s *InMemoryStore) SetSession(ctx context.Context, chatKey string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[chatKey] = append([]byte(nil), data...)
	return nil
}

func (s *InMemoryStore) DeleteSession(ctx context.Context, chatKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatKey)
	return nil
}

func (s *InMemoryStore) GetOrCreateUser(ctx context.Context, telegramID, name string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[telegramID]; ok {
		return u, nil
	}
	s.nextID++
	now := time.Now()
	u := models.User{
		ID:         s.nextID,
		TelegramID: telegramID,
		Name:       name,
		Timezone:   models.DefaultTimezone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.users[telegramID] = u
	return u, nil
}

func (s *InMemoryStore) updateUser(telegramID string, mutate func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return ErrUserNotFound
	}
	mutate(&u)
	u.UpdatedAt = time.Now()
	s.users[telegramID] = u
	return nil
}

func (s *InMemoryStore) SetHabitDatabaseID(ctx context.Context, telegramID, databaseID string) error {
	return s.updateUser(telegramID, func(u *models.User) { u.HabitDatabaseID = databaseID })
}

func (s *InMemoryStore) SetTimezone(ctx context.Context, telegramID, timezone string) error {
	return s.updateUser(telegramID, func(u *models.User) { u.Timezone = timezone })
}

func (s *InMemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sortUsers(users)
	return users, nil
}

func (s *InMemoryStore) IsDuplicate(ctx context.Context, updateID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.inbound[updateID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, updateID, chatKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[updateID]; ok {
		return false, nil
	}
	s.inbound[updateID] = DedupRecord{UpdateID: updateID, ChatKey: chatKey, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, updateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.inbound[updateID]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.inbound[updateID] = rec
	return nil
}

func (s *InMemoryStore) PruneInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.inbound {
		if rec.ProcessedAt != nil && rec.ReceivedAt.Before(cutoff) {
			delete(s.inbound, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}

func sortUsers(users []models.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}

// Compile-time checks.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*Composite)(nil)
)
