package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/HabitPipe/internal/habitsource/memory"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/store"
	"github.com/BTreeMap/HabitPipe/internal/testutil"
)

// 05:00 in New York (EDT), 18:00 in Tokyo.
var reportNow = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]models.Reply
	fail string
}

func (r *recordingSender) SendMessage(ctx context.Context, chatKey string, reply models.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chatKey == r.fail {
		return errors.New("forbidden: bot was blocked by the user")
	}
	if r.sent == nil {
		r.sent = make(map[string][]models.Reply)
	}
	r.sent[chatKey] = append(r.sent[chatKey], reply)
	return nil
}

func num(n float64) models.PageValue {
	return models.PageValue{Type: models.HabitTypeNumber, Number: &n}
}

func checked() models.PageValue {
	return models.PageValue{Type: models.HabitTypeCheckbox, Checkbox: true}
}

func at(ts string) models.PageValue {
	return models.PageValue{Type: models.HabitTypeDate, Date: ts}
}

var (
	pushups = models.HabitProperty{ID: "p", FullName: "💪 Pushups", Name: "💪 Pushups", Emoji: "💪", Text: "Pushups", Type: models.HabitTypeNumber}
	read    = models.HabitProperty{ID: "r", FullName: "📚 Read@21", Name: "📚 Read", Emoji: "📚", Text: "Read", Type: models.HabitTypeCheckbox, Reminders: []int{21}}
	wake    = models.HabitProperty{ID: "w", FullName: "🌅 Wake", Name: "🌅 Wake", Emoji: "🌅", Text: "Wake", Type: models.HabitTypeDate}
	stretch = models.HabitProperty{ID: "s", FullName: "🧘 Stretch", Name: "🧘 Stretch", Emoji: "🧘", Text: "Stretch", Type: models.HabitTypeCheckbox}
)

func samplePages() []models.TodayPage {
	return []models.TodayPage{
		{Date: "2024-06-09", Values: map[string]models.PageValue{pushups.FullName: num(10), read.FullName: checked(), wake.FullName: at("2024-06-09T07:00:00")}},
		{Date: "2024-06-08", Values: map[string]models.PageValue{pushups.FullName: num(20), read.FullName: checked(), wake.FullName: at("2024-06-08T08:00:00")}},
		{Date: "2024-06-07", Values: map[string]models.PageValue{}},
		{Date: "2024-06-06", Values: map[string]models.PageValue{wake.FullName: at("2024-06-06")}},
		{Date: "2024-06-02", Values: map[string]models.PageValue{wake.FullName: at("2024-06-02T06:00:00")}},
		{Date: "2024-06-01", Values: map[string]models.PageValue{pushups.FullName: num(10), read.FullName: checked()}},
		{Date: "2024-05-20", Values: map[string]models.PageValue{pushups.FullName: num(1000)}},
	}
}

func TestBuild_ComparesWeeks(t *testing.T) {
	reply, ok := Build([]models.HabitProperty{pushups, read, wake, stretch}, samplePages(), reportNow, time.UTC)
	require.True(t, ok)
	assert.Equal(t, models.ParseModeHTML, reply.ParseMode)

	lines := strings.Split(reply.Text, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "📊 Weekly Habit Report", lines[0])
	assert.Equal(t, "<pre>"+header, lines[1])

	rows := lines[3:]
	assert.Equal(t, runewidth.FillRight(pushups.Name, nameWidth)+"  15.0 ↑50%", rows[0])
	assert.Equal(t, runewidth.FillRight(read.Name, nameWidth)+"    50% 0%", rows[1])
	assert.Equal(t, runewidth.FillRight(wake.Name, nameWidth)+" 07:30 ↑25%</pre>", rows[2])
	assert.NotContains(t, reply.Text, "Stretch")
}

func TestBuild_NoPreviousWeek(t *testing.T) {
	pages := []models.TodayPage{
		{Date: "2024-06-10", Values: map[string]models.PageValue{pushups.FullName: num(3)}},
	}
	reply, ok := Build([]models.HabitProperty{pushups}, pages, reportNow, time.UTC)
	require.True(t, ok)
	assert.Contains(t, reply.Text, "  3.0 ---")
}

func TestBuild_NothingThisWeek(t *testing.T) {
	pages := []models.TodayPage{
		{Date: "2024-06-01", Values: map[string]models.PageValue{pushups.FullName: num(3)}},
	}
	_, ok := Build([]models.HabitProperty{pushups, stretch}, pages, reportNow, time.UTC)
	assert.False(t, ok)
}

func TestBuild_EscapesNames(t *testing.T) {
	h := models.HabitProperty{FullName: "🍪 <3 cookies", Name: "🍪 <3 cookies", Type: models.HabitTypeNumber}
	pages := []models.TodayPage{{Date: "2024-06-09", Values: map[string]models.PageValue{h.FullName: num(1)}}}
	reply, ok := Build([]models.HabitProperty{h}, pages, reportNow, time.UTC)
	require.True(t, ok)
	assert.Contains(t, reply.Text, "&lt;3 cookies")
}

func TestSplitWeeks_UsesLocalDate(t *testing.T) {
	pages := []models.TodayPage{{Date: "2024-06-10"}, {Date: "2024-06-03"}, {Date: "2024-05-26"}}
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// Still 2024-06-09 in New York: 06-10 is in the future, 06-03 is this week.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	current, previous := splitWeeks(pages, time.Date(2024, 6, 10, 2, 0, 0, 0, time.UTC), ny)
	assert.Len(t, current, 1)
	assert.Equal(t, "2024-06-03", current[0].Date)
	assert.Len(t, previous, 1)

	current, previous = splitWeeks(pages, time.Date(2024, 6, 10, 2, 0, 0, 0, time.UTC), tokyo)
	require.Len(t, current, 1)
	assert.Equal(t, "2024-06-10", current[0].Date)
	require.Len(t, previous, 1)
	assert.Equal(t, "2024-06-03", previous[0].Date)
}

func TestReporter_SendsAtReportHour(t *testing.T) {
	st := store.NewInMemoryStore()
	registry := memory.NewRegistry()
	sender := &recordingSender{}

	testutil.SeedUser(t, st, "1", "America/New_York", "db-ny")
	testutil.SeedUser(t, st, "2", "Asia/Tokyo", "db-tokyo")
	testutil.SeedUser(t, st, "3", "America/New_York", "db-empty")
	testutil.SeedUser(t, st, "4", "America/New_York", "")

	h := testutil.SeedHabit(t, registry, "db-ny", "Pushups", "💪", models.HabitTypeNumber)
	registry.Get("db-ny").AddPage(models.TodayPage{Index: 1, Date: "2024-06-09", Values: map[string]models.PageValue{h.FullName: num(12)}})
	th := testutil.SeedHabit(t, registry, "db-tokyo", "Walk", "🚶", models.HabitTypeNumber)
	registry.Get("db-tokyo").AddPage(models.TodayPage{Index: 1, Date: "2024-06-10", Values: map[string]models.PageValue{th.FullName: num(1)}})
	testutil.SeedHabit(t, registry, "db-empty", "Read", "📚", models.HabitTypeCheckbox)

	res, err := NewReporter(st, memory.NewFactory(registry), sender, WithConcurrency(2)).Run(context.Background(), reportNow)
	require.NoError(t, err)

	assert.Equal(t, Result{Users: 2, Sent: 1, Failed: 0}, res)
	require.Len(t, sender.sent["1"], 1)
	assert.Contains(t, sender.sent["1"][0].Text, " 12.0 ---")
	assert.Empty(t, sender.sent["2"])
	assert.Empty(t, sender.sent["3"])
}

func TestReporter_CountsFailures(t *testing.T) {
	st := store.NewInMemoryStore()
	registry := memory.NewRegistry()
	sender := &recordingSender{fail: "1"}

	testutil.SeedUser(t, st, "1", "UTC", "db")
	h := testutil.SeedHabit(t, registry, "db", "Pushups", "💪", models.HabitTypeNumber)
	registry.Get("db").AddPage(models.TodayPage{Index: 1, Date: "2024-06-10", Values: map[string]models.PageValue{h.FullName: num(5)}})

	res, err := NewReporter(st, memory.NewFactory(registry), sender).Run(context.Background(), time.Date(2024, 6, 10, ReportHour, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 1, Sent: 0, Failed: 1}, res)
}
