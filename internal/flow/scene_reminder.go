package flow

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// Steps of the add_reminder scene.
const (
	ReminderStepSelectHabit = 0
	ReminderStepSelectHour  = 1
)

func addReminderScene() Scene {
	return Scene{
		ID:       models.SceneAddReminder,
		OnEnter:  addReminderEnter,
		Commands: backTo("Cancelled reminder setup."),
		OnText:   addReminderText,
	}
}

func addReminderEnter(t *Turn) error {
	if !requireSource(t) {
		return nil
	}
	if h := t.Session.Flow.SelectedHabit(); h != nil {
		promptHour(t, *h)
		return nil
	}
	habits, err := t.Source.GetHabits(t.Ctx)
	if err != nil {
		return err
	}
	if len(habits) == 0 {
		t.Reply("You have no habits to remind. Create a habit first with /new_habit", models.RemoveKeyboard())
		t.Leave()
		return nil
	}
	t.Session.Step = ReminderStepSelectHabit
	t.Reply("Select a habit to add a reminder to:\n\nOr go /back", EmojiKeyboard(habits))
	return nil
}

func promptHour(t *Turn, h models.HabitProperty) {
	t.Session.Flow = models.RemindingFlow(&h)
	t.Session.Step = ReminderStepSelectHour
	msg := fmt.Sprintf("At what hour should I remind you about %s?", h.Name)
	if len(h.Reminders) > 0 {
		msg += "\nCurrent reminders: " + FormatReminders(h.Reminders)
	}
	t.Reply(msg+"\n\nOr go /back", HourKeyboard())
}

// ParseHour accepts "H", "HH" and "HH:00". The range is not checked.
func ParseHour(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ":00")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func addReminderText(t *Turn) error {
	h := t.Session.Flow.SelectedHabit()
	if t.Session.Step == ReminderStepSelectHabit || h == nil {
		sel, found, err := selectHabit(t, t.Text())
		if err != nil {
			return err
		}
		if !found {
			t.Reply(msgInvalidHabit, nil)
			return nil
		}
		promptHour(t, sel)
		return nil
	}

	hour, ok := ParseHour(t.Text())
	if !ok {
		t.Reply("Please enter an hour between 0 and 23.", HourKeyboard())
		return nil
	}
	if err := t.Source.AddReminderToHabit(t.Ctx, h.ID, hour); err != nil {
		msg, ok := userMessage(err)
		if !ok {
			return err
		}
		t.Reply(msg, models.RemoveKeyboard())
		t.Leave()
		return nil
	}
	slog.Info("flow.addReminderText: reminder added", "chatKey", t.Update.ChatKey, "habit", h.Name, "hour", hour)
	t.Reply(fmt.Sprintf("I will remind you about %s at %d:00 every day.", h.Name, hour), models.RemoveKeyboard())
	t.Leave()
	return nil
}

func clearRemindersScene() Scene {
	return Scene{
		ID:       models.SceneClearReminders,
		OnEnter:  clearRemindersEnter,
		Commands: backTo("Cancelled clearing reminders."),
		OnText:   clearRemindersText,
	}
}

func clearRemindersEnter(t *Turn) error {
	if !requireSource(t) {
		return nil
	}
	habits, err := t.Source.GetHabits(t.Ctx)
	if err != nil {
		return err
	}
	var reminded []models.HabitProperty
	for _, h := range habits {
		if len(h.Reminders) > 0 {
			reminded = append(reminded, h)
		}
	}
	if len(reminded) == 0 {
		t.Reply("None of your habits have reminders.", models.RemoveKeyboard())
		t.Leave()
		return nil
	}
	t.Session.Flow = models.RemindingFlow(nil)
	t.Reply("Select a habit to clear reminders from:\n\nOr go /back", EmojiKeyboard(reminded))
	return nil
}

func clearRemindersText(t *Turn) error {
	h, found, err := selectHabit(t, t.Text())
	if err != nil {
		return err
	}
	if !found {
		t.Reply(msgInvalidHabit, nil)
		return nil
	}
	if err := t.Source.ClearRemindersFromHabit(t.Ctx, h.ID); err != nil {
		msg, ok := userMessage(err)
		if !ok {
			return err
		}
		t.Reply(msg, models.RemoveKeyboard())
		t.Leave()
		return nil
	}
	slog.Info("flow.clearRemindersText: reminders cleared", "chatKey", t.Update.ChatKey, "habit", h.Name)
	t.Reply(fmt.Sprintf("Reminders cleared for %s.", h.Name), models.RemoveKeyboard())
	t.Leave()
	return nil
}
