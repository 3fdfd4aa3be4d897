// Package habitsource defines the habit data contract consumed by HabitPipe dialogs and the
// cached habit database built on top of a document-like property backend.
package habitsource

import (
	"context"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// Source is everything the dialogs need from a habit backend.
type Source interface {
	// GetHabits lists habit properties, excluding reserved bookkeeping properties.
	GetHabits(ctx context.Context) ([]models.HabitProperty, error)

	// GetHabitByID, GetHabitByEmoji and GetHabitByName return ErrNotFound when nothing matches.
	GetHabitByID(ctx context.Context, id string) (models.HabitProperty, error)
	GetHabitByEmoji(ctx context.Context, emoji string) (models.HabitProperty, error)
	GetHabitByName(ctx context.Context, name string) (models.HabitProperty, error)

	// GetTodayPage returns nil when no record exists for the current local day.
	GetTodayPage(ctx context.Context) (*models.TodayPage, error)

	// GetRecentPages returns up to limit day records, newest first.
	GetRecentPages(ctx context.Context, limit int) ([]models.TodayPage, error)

	// LogHabit validates raw for the habit type and upserts it into today's record.
	LogHabit(ctx context.Context, habitID, raw string) error

	AddNewHabit(ctx context.Context, text, emoji string, t models.HabitType) error
	RemoveHabit(ctx context.Context, habitID string) error
	AddReminderToHabit(ctx context.Context, habitID string, hour int) error
	ClearRemindersFromHabit(ctx context.Context, habitID string) error
}

// Property is a raw backend column.
type Property struct {
	ID   string
	Name string
	Type string
}

// Backend is the low-level document store a Database is built on.
type Backend interface {
	Properties(ctx context.Context) ([]Property, error)
	CreateProperty(ctx context.Context, name string, t models.HabitType) error
	RenameProperty(ctx context.Context, name, newName string) error
	DeleteProperty(ctx context.Context, name string) error

	// LatestPages returns up to limit day pages ordered by date, newest first.
	LatestPages(ctx context.Context, limit int) ([]models.TodayPage, error)
	CreatePage(ctx context.Context, index int, date string, values map[string]models.PageValue) error
	UpdatePage(ctx context.Context, pageID string, values map[string]models.PageValue) error
}

// Factory builds the Source for a user. It returns ErrNotConfigured when the user has no
// habit database.
type Factory interface {
	ForUser(user models.User) (Source, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(user models.User) (Source, error)

// ForUser implements Factory.
func (f FactoryFunc) ForUser(user models.User) (Source, error) {
	return f(user)
}

// NewFactory returns a Factory building a Database per user over newBackend. Options apply
// to every Database; the user's timezone is always applied last.
func NewFactory(newBackend func(databaseID string) Backend, opts ...Option) Factory {
	return FactoryFunc(func(user models.User) (Source, error) {
		if user.HabitDatabaseID == "" {
			return nil, ErrNotConfigured
		}
		all := append(append([]Option(nil), opts...), WithLocation(user.Location()))
		return NewDatabase(user.HabitDatabaseID, newBackend(user.HabitDatabaseID), all...), nil
	})
}
