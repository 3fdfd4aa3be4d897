package flow

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/HabitPipe/internal/habit"
	"github.com/BTreeMap/HabitPipe/internal/models"
)

// Steps of the new_habit scene.
const (
	NewStepName  = 0
	NewStepEmoji = 1
	NewStepType  = 2
)

// Steps of the remove_habit scene.
const (
	RemoveStepSelectHabit = 0
	RemoveStepConfirm     = 1
)

func newHabitScene() Scene {
	return Scene{
		ID:       models.SceneNewHabit,
		OnEnter:  newHabitEnter,
		Commands: backTo("Cancelled habit creation."),
		OnText:   newHabitText,
	}
}

func newHabitEnter(t *Turn) error {
	if !requireSource(t) {
		return nil
	}
	t.Session.Flow = models.CreatingFlow(models.HabitDraft{})
	t.Session.Step = NewStepName
	t.Reply("What is the name of the habit you would like to track?\n\nOr go /back", models.RemoveKeyboard())
	return nil
}

func newHabitText(t *Turn) error {
	if t.Session.Flow.Draft == nil {
		t.Session.Flow = models.CreatingFlow(models.HabitDraft{})
		t.Session.Step = NewStepName
	}
	draft := t.Session.Flow.Draft
	text := t.Text()

	switch t.Session.Step {
	case NewStepName:
		if text == "" {
			t.Reply("What is the name of the habit you would like to track?\n\nOr go /back", nil)
			return nil
		}
		draft.Text = text
		t.Session.Step = NewStepEmoji
		t.Reply("What emoji will represent this habit?", nil)
		return nil

	case NewStepEmoji:
		if !habit.IsEmoji(text) {
			t.Reply("Invalid emoji. Please try again.", nil)
			return nil
		}
		draft.Emoji = text
		t.Session.Step = NewStepType
		t.Reply("What type of data will this habit track?", TypeKeyboard())
		return nil

	default:
		ht, ok := ParseTypeChoice(text)
		if !ok {
			t.Reply("Invalid type. Please choose one of the options.", TypeKeyboard())
			return nil
		}
		draft.Type = ht
		if err := t.Source.AddNewHabit(t.Ctx, draft.Text, draft.Emoji, draft.Type); err != nil {
			msg, ok := userMessage(err)
			if !ok {
				return err
			}
			t.Reply(msg, models.RemoveKeyboard())
			t.Leave()
			return nil
		}
		slog.Info("flow.newHabitText: habit created", "chatKey", t.Update.ChatKey, "text", draft.Text, "type", draft.Type)
		t.Reply(fmt.Sprintf("Habit '%s' tracking setup complete!", draft.Text), models.RemoveKeyboard())
		replyDefault(t)
		t.Leave()
		return nil
	}
}

func removeHabitScene() Scene {
	return Scene{
		ID:       models.SceneRemoveHabit,
		OnEnter:  removeHabitEnter,
		Commands: backTo("Cancelled habit removal."),
		OnText:   removeHabitText,
	}
}

func removeHabitEnter(t *Turn) error {
	if !requireSource(t) {
		return nil
	}
	habits, err := t.Source.GetHabits(t.Ctx)
	if err != nil {
		return err
	}
	if len(habits) == 0 {
		t.Reply("You have no habits to remove.", models.RemoveKeyboard())
		t.Leave()
		return nil
	}
	t.Session.Step = RemoveStepSelectHabit
	t.Reply("Select a habit to remove:\n\nOr go /back", EmojiKeyboard(habits))
	return nil
}

func removeHabitText(t *Turn) error {
	h := t.Session.Flow.SelectedHabit()
	if t.Session.Step == RemoveStepSelectHabit || h == nil {
		sel, found, err := selectHabit(t, t.Text())
		if err != nil {
			return err
		}
		if !found {
			t.Reply(msgHabitNotFound, nil)
			return nil
		}
		t.Session.Flow = models.RemovingFlow(&sel)
		t.Session.Step = RemoveStepConfirm
		t.Reply(fmt.Sprintf("Are you sure you want to delete '%s'?\nType the habit name to confirm deletion or /back to cancel.", sel.Text), models.RemoveKeyboard())
		return nil
	}

	if t.Text() != h.Text {
		t.Reply(fmt.Sprintf("Names do not match. Please type the exact habit name to confirm deletion.\nHabit name: %s", h.Text), nil)
		return nil
	}
	if err := t.Source.RemoveHabit(t.Ctx, h.ID); err != nil {
		msg, ok := userMessage(err)
		if !ok {
			return err
		}
		t.Reply(msg, nil)
		t.Leave()
		return nil
	}
	delete(t.Session.HabitMeta, h.ID)
	slog.Info("flow.removeHabitText: habit removed", "chatKey", t.Update.ChatKey, "habit", h.Name)
	t.Reply(fmt.Sprintf("Habit '%s' has been deleted.", h.Name), nil)
	t.Leave()
	return nil
}
