package flow

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/models"
)

// Replies shared by several scenes.
const (
	msgDatabaseNotSet  = "Database not set. Please set your database with /set_database_id"
	msgInvalidHabit    = "Invalid habit selection. Please try again."
	msgHabitNotFound   = "Habit not found or already deleted."
	msgUnknownDatabase = "Unable to find habit database. Try /set_database_id to set your Notion Habit Database ID."
)

// ErrNoUserStore is returned by scenes that edit user settings when the engine has no user store.
var ErrNoUserStore = errors.New("user store not configured")

// backTo builds a back command that replies msg and leaves the scene.
func backTo(msg string) map[string]Handler {
	return map[string]Handler{
		"back": func(t *Turn) error {
			t.Reply(msg, models.RemoveKeyboard())
			t.Leave()
			return nil
		},
	}
}

// requireSource replies setup instructions and leaves when the user has no habit database.
func requireSource(t *Turn) bool {
	if t.Source != nil {
		return true
	}
	t.Reply(msgDatabaseNotSet, models.RemoveKeyboard())
	t.Leave()
	return false
}

// selectHabit resolves text to a habit by emoji, then by name. found is false when nothing
// matches; err is only set for backend failures.
func selectHabit(t *Turn, text string) (h models.HabitProperty, found bool, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return h, false, nil
	}
	h, err = t.Source.GetHabitByEmoji(t.Ctx, text)
	if err == nil {
		return h, true, nil
	}
	if !errors.Is(err, habitsource.ErrNotFound) {
		return h, false, err
	}
	h, err = t.Source.GetHabitByName(t.Ctx, text)
	if err == nil {
		return h, true, nil
	}
	if errors.Is(err, habitsource.ErrNotFound) {
		return h, false, nil
	}
	return h, false, err
}

// userMessage returns the text shown for failures the user can act on. Backend failures are
// not user errors and yield false.
func userMessage(err error) (string, bool) {
	switch habitsource.KindOf(err) {
	case habitsource.KindValidation, habitsource.KindConflict:
		return err.Error(), true
	case habitsource.KindNotFound:
		return msgHabitNotFound, true
	case habitsource.KindNotConfigured:
		return msgDatabaseNotSet, true
	default:
		return "", false
	}
}

// replyDefault sends the greeting with the TODAY table when the habit source is reachable.
// Source failures only drop the table.
func replyDefault(t *Turn) {
	var habits []models.HabitProperty
	var page *models.TodayPage
	if t.Source != nil {
		var err error
		habits, err = t.Source.GetHabits(t.Ctx)
		if err == nil {
			page, err = t.Source.GetTodayPage(t.Ctx)
		}
		if err != nil {
			slog.Warn("flow.replyDefault: habit source unavailable, sending greeting only", "chatKey", t.Update.ChatKey, "error", err)
			habits, page = nil, nil
		}
	}

	r := models.Reply{Text: DefaultMessage(habits, page), ParseMode: models.ParseModeHTML}
	if len(habits) > 0 {
		r.Keyboard = InlineHabitKeyboard(habits)
	}
	t.ReplyWith(r)
}
