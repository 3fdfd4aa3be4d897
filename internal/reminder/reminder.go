// Package reminder sends the hourly habit reminders.
//
// A habit's reminder hours are encoded in its name ("💪 Pushups@9,18"). Once per hour the
// dispatcher walks every configured user, computes the hour in the user's timezone and sends a
// reminder for each habit scheduled at that hour.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/HabitPipe/internal/flow"
	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/store"
)

// DefaultConcurrency is how many users are processed at once.
const DefaultConcurrency = 4

// Sender delivers a reply to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatKey string, reply models.Reply) error
}

// Result summarizes one sweep.
type Result struct {
	Users  int `json:"users"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatcher runs reminder sweeps.
type Dispatcher struct {
	users       store.UserStore
	sources     habitsource.Factory
	sender      Sender
	concurrency int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency sets how many users are processed at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(users store.UserStore, sources habitsource.Factory, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{users: users, sources: sources, sender: sender, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Message builds the reminder for h, with a button that logs it.
func Message(h models.HabitProperty) models.Reply {
	return models.Reply{
		Text: "Reminder for habit: " + h.Name,
		Keyboard: &models.Keyboard{Inline: true, Rows: [][]models.Button{
			{{Label: h.Emoji + " Log now", Data: flow.ActionLogPrefix + h.ID}},
		}},
	}
}

// Run sends the reminders due at now. Per-user failures are counted and logged; only a failure
// to list users is returned.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) (Result, error) {
	users, err := d.users.ListUsers(ctx)
	if err != nil {
		slog.Error("Dispatcher.Run: failed to list users", "error", err)
		return Result{}, fmt.Errorf("list users: %w", err)
	}

	var processed, sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, u := range users {
		if u.TelegramID == "" || u.HabitDatabaseID == "" {
			continue
		}
		u := u
		processed.Add(1)
		g.Go(func() error {
			n, err := d.remindUser(gctx, u, now)
			sent.Add(int64(n))
			if err != nil {
				failed.Add(1)
				slog.Warn("Dispatcher.Run: reminders failed for user", "user", u.TelegramID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Users: int(processed.Load()), Sent: int(sent.Load()), Failed: int(failed.Load())}
	slog.Info("Dispatcher.Run: sweep finished", "hourUTC", now.UTC().Hour(), "users", res.Users, "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

func (d *Dispatcher) remindUser(ctx context.Context, u models.User, now time.Time) (int, error) {
	src, err := d.sources.ForUser(u)
	if err != nil {
		return 0, err
	}
	habits, err := src.GetHabits(ctx)
	if err != nil {
		return 0, err
	}

	hour := now.In(u.Location()).Hour()
	var sent int
	var errs []error
	for _, h := range habits {
		if !h.HasReminder(hour) {
			continue
		}
		if err := d.sender.SendMessage(ctx, u.TelegramID, Message(h)); err != nil {
			errs = append(errs, fmt.Errorf("remind %s: %w", h.Name, err))
			continue
		}
		sent++
		slog.Debug("Dispatcher.remindUser: reminder sent", "user", u.TelegramID, "habit", h.Name, "hour", hour)
	}
	return sent, errors.Join(errs...)
}
