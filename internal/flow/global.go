package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// NewHabitEngine returns an Engine with every habit scene, global command and callback action
// registered.
func NewHabitEngine(opts ...Option) *Engine {
	e := NewEngine(opts...)
	e.Register(
		logHabitScene(),
		newHabitScene(),
		removeHabitScene(),
		setDatabaseIDScene(),
		addReminderScene(),
		clearRemindersScene(),
		setTimezoneScene(),
	)

	greet := func(t *Turn) error {
		replyDefault(t)
		return nil
	}
	e.HandleCommand("start", greet)
	e.HandleCommand("help", greet)
	e.HandleCommand("new_habit", enterWith(models.SceneNewHabit, models.NoFlow()))
	e.HandleCommand("remove_habit", enterWith(models.SceneRemoveHabit, models.RemovingFlow(nil)))
	e.HandleCommand("log_habit", enterWith(models.SceneLogHabit, models.LoggingFlow(nil)))
	e.HandleCommand("set_database_id", enterWith(models.SceneSetDatabaseID, models.NoFlow()))
	e.HandleCommand("add_reminder", enterWith(models.SceneAddReminder, models.RemindingFlow(nil)))
	e.HandleCommand("clear_reminders", enterWith(models.SceneClearReminders, models.RemindingFlow(nil)))
	e.HandleCommand("set_timezone", enterWith(models.SceneSetTimezone, models.NoFlow()))
	e.HandleCommand("get_timezone", getTimezone)
	e.HandleCommand("list_habits", listHabits)

	e.HandleAction(ActionLogPrefix, logAction)
	e.HandleAction(ActionNewHabit, enterWith(models.SceneNewHabit, models.NoFlow()))

	e.SetDefault(shortcutOrGreet)
	return e
}

func enterWith(id models.SceneID, f models.Flow) Handler {
	return func(t *Turn) error {
		t.EnterWith(id, f)
		return nil
	}
}

func getTimezone(t *Turn) error {
	t.Reply(fmt.Sprintf("Your timezone is %s", t.Location()), nil)
	return nil
}

func listHabits(t *Turn) error {
	if t.Source == nil {
		t.Reply(msgUnknownDatabase, nil)
		return nil
	}
	habits, err := t.Source.GetHabits(t.Ctx)
	if err != nil {
		return err
	}
	if len(habits) == 0 {
		t.Reply("You are not tracking any habits yet. Create one with /new_habit", nil)
		return nil
	}
	t.Reply("Here's a list of the habits you are tracking:\n\n"+HabitList(habits), HabitKeyboard(habits))
	return nil
}

// logAction handles the inline emoji buttons under the TODAY table.
func logAction(t *Turn) error {
	if t.Source == nil {
		t.Reply(msgDatabaseNotSet, nil)
		return nil
	}
	id := strings.TrimPrefix(t.Update.Payload, ActionLogPrefix)
	h, err := t.Source.GetHabitByID(t.Ctx, id)
	if err != nil {
		msg, ok := userMessage(err)
		if !ok {
			return err
		}
		t.Reply(msg, nil)
		return nil
	}
	t.EnterWith(models.SceneLogHabit, models.LoggingFlow(&h))
	return nil
}

// shortcutOrGreet starts logging when the text names a habit by name or emoji and otherwise
// replies with the default message.
func shortcutOrGreet(t *Turn) error {
	if t.Source != nil && t.Update.Kind == models.UpdateText {
		h, found, err := selectHabit(t, t.Text())
		if err != nil {
			return err
		}
		if found {
			t.EnterWith(models.SceneLogHabit, models.LoggingFlow(&h))
			return nil
		}
	}
	replyDefault(t)
	return nil
}
