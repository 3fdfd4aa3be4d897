// Package report sends the weekly habit report.
//
// Once a day, at ReportHour in the user's timezone, each configured user gets a table comparing
// this week's logs with last week's: average time of day for DATE habits, average value for
// NUMBER habits and completion rate for CHECKBOX habits.
package report

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/HabitPipe/internal/habit"
	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/store"
)

const (
	// ReportHour is the local hour the report goes out.
	ReportHour = 5
	// PageWindow is how many day pages the report reads.
	PageWindow = 15
	// DefaultConcurrency is how many users are processed at once.
	DefaultConcurrency = 4

	nameWidth = 15
	title     = "📊 Weekly Habit Report"
	header    = "Habit           Curr   WoW"
	rule      = "―――――――――――――――――――――――"
)

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

// Reporter runs weekly report sweeps.
type Reporter struct {
	users       store.UserStore
	sources     habitsource.Factory
	sender      Sender
	concurrency int
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithConcurrency sets how many users are processed at once.
func WithConcurrency(n int) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewReporter creates a Reporter.
func NewReporter(users store.UserStore, sources habitsource.Factory, sender Sender, opts ...Option) *Reporter {
	r := &Reporter{users: users, sources: sources, sender: sender, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sends the report to every configured user whose local hour at now is ReportHour.
// Per-user failures are counted and logged; only a failure to list users is returned.
func (r *Reporter) Run(ctx context.Context, now time.Time) (Result, error) {
	users, err := r.users.ListUsers(ctx)
	if err != nil {
		slog.Error("Reporter.Run: failed to list users", "error", err)
		return Result{}, fmt.Errorf("list users: %w", err)
	}

	var processed, sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, u := range users {
		if u.TelegramID == "" || u.HabitDatabaseID == "" {
			continue
		}
		if now.In(u.Location()).Hour() != ReportHour {
			continue
		}
		u := u
		processed.Add(1)
		g.Go(func() error {
			ok, err := r.reportUser(gctx, u, now)
			if err != nil {
				failed.Add(1)
				slog.Warn("Reporter.Run: report failed for user", "user", u.TelegramID, "error", err)
				return nil
			}
			if ok {
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Users: int(processed.Load()), Sent: int(sent.Load()), Failed: int(failed.Load())}
	slog.Info("Reporter.Run: sweep finished", "hourUTC", now.UTC().Hour(), "users", res.Users, "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

func (r *Reporter) reportUser(ctx context.Context, u models.User, now time.Time) (bool, error) {
	src, err := r.sources.ForUser(u)
	if err != nil {
		return false, err
	}
	habits, err := src.GetHabits(ctx)
	if err != nil {
		return false, err
	}
	pages, err := src.GetRecentPages(ctx, PageWindow)
	if err != nil {
		return false, err
	}

	reply, ok := Build(habits, pages, now, u.Location())
	if !ok {
		slog.Debug("Reporter.reportUser: nothing logged this week", "user", u.TelegramID)
		return false, nil
	}
	if err := r.sender.SendMessage(ctx, u.TelegramID, reply); err != nil {
		return false, fmt.Errorf("send report: %w", err)
	}
	return true, nil
}

// Build renders the report for the pages around now. It reports false when no habit was
// logged this week.
func Build(habits []models.HabitProperty, pages []models.TodayPage, now time.Time, loc *time.Location) (models.Reply, bool) {
	current, previous := splitWeeks(pages, now, loc)

	var rows []string
	for _, h := range habits {
		var row string
		var ok bool
		switch h.Type {
		case models.HabitTypeDate:
			row, ok = timeRow(h, current, previous)
		case models.HabitTypeNumber:
			row, ok = numberRow(h, current, previous)
		case models.HabitTypeCheckbox:
			row, ok = checkboxRow(h, current, previous)
		}
		if ok {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return models.Reply{}, false
	}

	table := strings.Join(append([]string{header, rule}, rows...), "\n")
	return models.Reply{
		Text:      title + "\n<pre>" + html.EscapeString(table) + "</pre>",
		ParseMode: models.ParseModeHTML,
	}, true
}

// splitWeeks puts pages dated 0-6 days before now's local date in current and those 7-14 days
// before in previous.
func splitWeeks(pages []models.TodayPage, now time.Time, loc *time.Location) (current, previous []models.TodayPage) {
	today, _ := time.Parse(time.DateOnly, habit.LocalDate(now, loc))
	for _, p := range pages {
		d, err := time.Parse(time.DateOnly, p.Date)
		if err != nil {
			continue
		}
		switch age := int(today.Sub(d).Hours() / 24); {
		case age >= 0 && age < 7:
			current = append(current, p)
		case age >= 7 && age < 15:
			previous = append(previous, p)
		}
	}
	return current, previous
}

func values(h models.HabitProperty, pages []models.TodayPage) []models.PageValue {
	var out []models.PageValue
	for _, p := range pages {
		if v, ok := p.Values[h.FullName]; ok {
			out = append(out, v)
		}
	}
	return out
}

// minutesOfDay returns the wall-clock time written in a DATE value. Date-only values have none.
func minutesOfDay(v models.PageValue) (int, bool) {
	if !strings.Contains(v.Date, "T") {
		return 0, false
	}
	d, ok := habit.ParseDate(v.Date)
	if !ok {
		return 0, false
	}
	return d.Hour()*60 + d.Minute(), true
}

func averageMinutes(vs []models.PageValue) (float64, bool) {
	var sum, n int
	for _, v := range vs {
		if m, ok := minutesOfDay(v); ok {
			sum += m
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return math.Round(float64(sum) / float64(n)), true
}

func averageNumber(vs []models.PageValue) (float64, bool) {
	var sum float64
	var n int
	for _, v := range vs {
		if v.Number != nil {
			sum += *v.Number
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func checkedCount(vs []models.PageValue) int {
	var n int
	for _, v := range vs {
		if v.Checkbox {
			n++
		}
	}
	return n
}

func timeRow(h models.HabitProperty, current, previous []models.TodayPage) (string, bool) {
	curr, ok := averageMinutes(values(h, current))
	if !ok {
		return "", false
	}
	change := "---"
	if prev, ok := averageMinutes(values(h, previous)); ok && prev != 0 {
		change = formatChange((curr - prev) / prev * 100)
	}
	m := int(curr)
	return row(h, fmt.Sprintf("%02d:%02d", m/60, m%60), change), true
}

func numberRow(h models.HabitProperty, current, previous []models.TodayPage) (string, bool) {
	curr, ok := averageNumber(values(h, current))
	if !ok {
		return "", false
	}
	change := "---"
	if prev, ok := averageNumber(values(h, previous)); ok && prev != 0 {
		change = formatChange((curr - prev) / prev * 100)
	}
	return row(h, fmt.Sprintf("%5.1f", curr), change), true
}

// checkboxRow compares completion rates; the change is in percentage points.
func checkboxRow(h models.HabitProperty, current, previous []models.TodayPage) (string, bool) {
	checked := checkedCount(values(h, current))
	if checked == 0 {
		return "", false
	}
	curr := float64(checked) / float64(len(current)) * 100
	change := "---"
	if prevChecked := checkedCount(values(h, previous)); prevChecked > 0 {
		change = formatChange(curr - float64(prevChecked)/float64(len(previous))*100)
	}
	return row(h, fmt.Sprintf("%5d%%", int(math.Round(curr))), change), true
}

func row(h models.HabitProperty, curr, change string) string {
	return runewidth.FillRight(h.Name, nameWidth) + " " + curr + " " + change
}

func formatChange(pct float64) string {
	n := int(math.Round(pct))
	switch {
	case n > 0:
		return fmt.Sprintf("↑%d%%", n)
	case n < 0:
		return fmt.Sprintf("↓%d%%", -n)
	default:
		return "0%"
	}
}
