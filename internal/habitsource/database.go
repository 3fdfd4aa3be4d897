package habitsource

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/HabitPipe/internal/habit"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/util"
)

// Database implements Source on top of a Backend.
type Database struct {
	id      string
	backend Backend
	cache   *SchemaCache
	loc     *time.Location
	now     func() time.Time
	locks   *util.KeyedMutex
}

// Option configures a Database.
type Option func(*Database)

// WithLocation sets the timezone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(d *Database) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Database) {
		if now != nil {
			d.now = now
		}
	}
}

// WithWriteLocks shares the per-(database, habit, day) write locks between Database values.
func WithWriteLocks(locks *util.KeyedMutex) Option {
	return func(d *Database) {
		if locks != nil {
			d.locks = locks
		}
	}
}

// NewDatabase creates a Database for the habit database id served by backend.
func NewDatabase(id string, backend Backend, opts ...Option) *Database {
	d := &Database{
		id:      id,
		backend: backend,
		loc:     time.UTC,
		now:     time.Now,
		locks:   util.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cache = NewSchemaCache(backend.Properties)
	return d
}

// Cache exposes the schema cache so callers can force a refetch.
func (d *Database) Cache() *SchemaCache {
	return d.cache
}

// isReserved reports whether name is a bookkeeping property rather than a habit.
func isReserved(name string) bool {
	return name == models.PropertyDate || name == models.PropertyIndex
}

// GetHabits lists all habit properties.
func (d *Database) GetHabits(ctx context.Context) ([]models.HabitProperty, error) {
	props, err := d.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	habits := make([]models.HabitProperty, 0, len(props))
	for _, p := range props {
		if isReserved(p.Name) {
			continue
		}
		t := models.HabitType(p.Type)
		if !models.IsValidHabitType(t) {
			continue
		}
		habits = append(habits, habit.ParseFullName(p.ID, p.Name, t))
	}
	return habits, nil
}

func (d *Database) findHabit(ctx context.Context, match func(models.HabitProperty) bool, what string) (models.HabitProperty, error) {
	habits, err := d.GetHabits(ctx)
	if err != nil {
		return models.HabitProperty{}, err
	}
	for _, h := range habits {
		if match(h) {
			return h, nil
		}
	}
	return models.HabitProperty{}, notFoundf("Habit %s not found", what)
}

// GetHabitByID finds a habit by its stable id.
func (d *Database) GetHabitByID(ctx context.Context, id string) (models.HabitProperty, error) {
	return d.findHabit(ctx, func(h models.HabitProperty) bool { return h.ID == id }, "with id "+id)
}

// GetHabitByEmoji finds a habit by its emoji.
func (d *Database) GetHabitByEmoji(ctx context.Context, emoji string) (models.HabitProperty, error) {
	emoji = strings.TrimSpace(emoji)
	return d.findHabit(ctx, func(h models.HabitProperty) bool { return h.Emoji == emoji }, emoji)
}

// GetHabitByName finds a habit by its name (emoji and text, no reminders).
func (d *Database) GetHabitByName(ctx context.Context, name string) (models.HabitProperty, error) {
	name = strings.TrimSpace(name)
	return d.findHabit(ctx, func(h models.HabitProperty) bool { return h.Name == name }, `"`+name+`"`)
}

// GetRecentPages returns up to limit day records, newest first.
func (d *Database) GetRecentPages(ctx context.Context, limit int) ([]models.TodayPage, error) {
	if limit <= 0 {
		limit = 10
	}
	return d.backend.LatestPages(ctx, limit)
}

// today returns the current local date, today's page (nil when absent) and the index a new
// day page would get.
func (d *Database) today(ctx context.Context) (string, *models.TodayPage, int, error) {
	date := habit.LocalDate(d.now(), d.loc)
	pages, err := d.backend.LatestPages(ctx, 1)
	if err != nil {
		return date, nil, 0, err
	}
	if len(pages) == 0 {
		return date, nil, 1, nil
	}
	latest := pages[0]
	next := latest.Index + 1
	if latest.Date == date {
		return date, &latest, next, nil
	}
	return date, nil, next, nil
}

// GetTodayPage returns today's record, or nil when none exists yet.
func (d *Database) GetTodayPage(ctx context.Context) (*models.TodayPage, error) {
	_, page, _, err := d.today(ctx)
	return page, err
}

// LogHabit validates raw and upserts it into today's record. NUMBER habits accumulate over
// the day; other types overwrite.
func (d *Database) LogHabit(ctx context.Context, habitID, raw string) error {
	h, err := d.GetHabitByID(ctx, habitID)
	if err != nil {
		return err
	}
	value, err := habit.ValidateValue(raw, h.Type)
	if err != nil {
		return err
	}

	date := habit.LocalDate(d.now(), d.loc)
	unlock := d.locks.Lock(d.id + "|" + h.ID + "|" + date)
	defer unlock()

	_, page, nextIndex, err := d.today(ctx)
	if err != nil {
		return err
	}

	var previous *models.PageValue
	if page != nil {
		if v, ok := page.Values[h.FullName]; ok {
			previous = &v
		}
	}
	payload := map[string]models.PageValue{h.FullName: pageValue(value, previous)}

	if page != nil {
		slog.Debug("Database.LogHabit: updating today's page", "database", d.id, "habit", h.Name, "page", page.ID)
		return d.backend.UpdatePage(ctx, page.ID, payload)
	}
	slog.Debug("Database.LogHabit: creating today's page", "database", d.id, "habit", h.Name, "index", nextIndex, "date", date)
	return d.backend.CreatePage(ctx, nextIndex, date, payload)
}

func pageValue(v habit.Value, previous *models.PageValue) models.PageValue {
	switch v.Type {
	case models.HabitTypeNumber:
		var prev *float64
		if previous != nil {
			prev = previous.Number
		}
		total := habit.AggregateNumberLog(prev, v.Number)
		return models.PageValue{Type: v.Type, Number: &total}
	case models.HabitTypeCheckbox:
		return models.PageValue{Type: v.Type, Checkbox: v.Checkbox}
	default:
		return models.PageValue{Type: v.Type, Date: v.Raw}
	}
}

// AddNewHabit creates a habit property named "<emoji> <text>".
func (d *Database) AddNewHabit(ctx context.Context, text, emoji string, t models.HabitType) error {
	text = strings.TrimSpace(text)
	emoji = strings.TrimSpace(emoji)
	switch {
	case text == "":
		return &Error{Kind: KindValidation, Message: models.ErrEmptyHabitText.Error()}
	case emoji == "":
		return &Error{Kind: KindValidation, Message: models.ErrEmptyHabitEmoji.Error()}
	case !models.IsValidHabitType(t):
		return &Error{Kind: KindValidation, Message: models.ErrInvalidHabitType.Error()}
	}

	name := habit.FormatFullName(emoji, text, nil)
	habits, err := d.GetHabits(ctx)
	if err != nil {
		return err
	}
	for _, h := range habits {
		if h.Name == name {
			return conflictf(`Habit with name "%s" already exists`, name)
		}
	}

	if err := d.backend.CreateProperty(ctx, name, t); err != nil {
		return err
	}
	d.cache.Invalidate()
	slog.Info("Database.AddNewHabit: habit created", "database", d.id, "name", name, "type", t)
	return nil
}

// RemoveHabit deletes the habit property.
func (d *Database) RemoveHabit(ctx context.Context, habitID string) error {
	h, err := d.GetHabitByID(ctx, habitID)
	if err != nil {
		return err
	}
	if err := d.backend.DeleteProperty(ctx, h.FullName); err != nil {
		return err
	}
	d.cache.Invalidate()
	slog.Info("Database.RemoveHabit: habit removed", "database", d.id, "name", h.FullName)
	return nil
}

// AddReminderToHabit adds hour to the habit's reminders by rewriting its full name.
func (d *Database) AddReminderToHabit(ctx context.Context, habitID string, hour int) error {
	h, err := d.GetHabitByID(ctx, habitID)
	if err != nil {
		return err
	}
	if hour < 0 || hour > 23 {
		return conflictf("Reminder hour must be between 0 and 23")
	}
	if h.HasReminder(hour) {
		return conflictf("Reminder for %d:00 already exists", hour)
	}
	reminders := append(append([]int(nil), h.Reminders...), hour)
	return d.rename(ctx, h, habit.FormatFullName(h.Emoji, h.Text, reminders))
}

// ClearRemindersFromHabit drops every reminder of the habit.
func (d *Database) ClearRemindersFromHabit(ctx context.Context, habitID string) error {
	h, err := d.GetHabitByID(ctx, habitID)
	if err != nil {
		return err
	}
	if len(h.Reminders) == 0 {
		return nil
	}
	return d.rename(ctx, h, habit.FormatFullName(h.Emoji, h.Text, nil))
}

func (d *Database) rename(ctx context.Context, h models.HabitProperty, newName string) error {
	if err := d.backend.RenameProperty(ctx, h.FullName, newName); err != nil {
		return err
	}
	if _, err := d.cache.Refresh(ctx); err != nil {
		return err
	}
	slog.Info("Database.rename: habit renamed", "database", d.id, "from", h.FullName, "to", newName)
	return nil
}

// Compile-time check that Database implements Source.
var _ Source = (*Database)(nil)
