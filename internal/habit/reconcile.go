package habit

import (
	"time"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// dateLayout is the calendar-date form used for day comparisons and day pages.
const dateLayout = "2006-01-02"

// LocalDate returns t's calendar date in loc.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

// previousLocalDate returns the calendar date before t's date in loc.
func previousLocalDate(t time.Time, loc *time.Location) string {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()-1, 12, 0, 0, 0, loc).Format(dateLayout)
}

// NextRecentValues puts value first, drops its earlier occurrence and keeps at most
// models.MaxRecentValues entries.
func NextRecentValues(existing []string, value string) []string {
	out := make([]string, 0, models.MaxRecentValues)
	out = append(out, value)
	for _, v := range existing {
		if len(out) == models.MaxRecentValues {
			break
		}
		if v == value {
			continue
		}
		out = append(out, v)
	}
	return out
}

// NextStreak computes the streak after a log at now.
//
// A first-ever log yields 0. A same-day re-log keeps the prior streak. A log on the local day
// right after lastRecorded increments it. Any gap, or a lastRecorded in the future, resets to 0.
func NextStreak(prior int, lastRecorded *time.Time, now time.Time, loc *time.Location) int {
	if lastRecorded == nil {
		return 0
	}
	last := LocalDate(*lastRecorded, loc)
	if last == LocalDate(now, loc) {
		return prior
	}
	if last == previousLocalDate(now, loc) {
		return prior + 1
	}
	return 0
}

// Reconcile returns the habit bookkeeping after a successful log of value at now.
func Reconcile(meta models.HabitMeta, value string, now time.Time, loc *time.Location) models.HabitMeta {
	recorded := now
	return models.HabitMeta{
		RecentValues: NextRecentValues(meta.RecentValues, value),
		LastRecorded: &recorded,
		Streak:       NextStreak(meta.Streak, meta.LastRecorded, now, loc),
	}
}
