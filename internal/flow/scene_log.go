package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/HabitPipe/internal/habit"
	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/models"
)

// Steps of the log_habit scene.
const (
	LogStepSelectHabit = 0
	LogStepAwaitValue  = 1
)

func logHabitScene() Scene {
	return Scene{
		ID:       models.SceneLogHabit,
		OnEnter:  logEnter,
		Commands: backTo("Cancelled habit logging."),
		OnText:   logText,
	}
}

func logEnter(t *Turn) error {
	if !requireSource(t) {
		return nil
	}
	if h := t.Session.Flow.SelectedHabit(); h != nil {
		return logSelected(t, *h)
	}

	habits, err := t.Source.GetHabits(t.Ctx)
	if err != nil {
		return err
	}
	if len(habits) == 0 {
		t.Reply("You have no habits to log. Create a habit first with /new_habit", models.RemoveKeyboard())
		t.Leave()
		return nil
	}
	t.Session.Step = LogStepSelectHabit
	t.Reply("Push the emoji of the habit you want to log:", EmojiKeyboard(habits))
	return nil
}

func logText(t *Turn) error {
	switch t.Session.Step {
	case LogStepAwaitValue:
		h := t.Session.Flow.SelectedHabit()
		if h == nil {
			slog.Warn("flow.logText: awaiting value without a habit, restarting selection", "chatKey", t.Update.ChatKey)
			t.Session.Step = LogStepSelectHabit
			t.Reply(msgInvalidHabit, nil)
			return nil
		}
		return logValue(t, *h, t.Text())
	default:
		h, found, err := selectHabit(t, t.Text())
		if err != nil {
			return err
		}
		if !found {
			t.Reply(msgInvalidHabit, nil)
			return nil
		}
		return logSelected(t, h)
	}
}

// logSelected logs DATE and CHECKBOX habits immediately and prompts for any other value.
func logSelected(t *Turn, h models.HabitProperty) error {
	switch h.Type {
	case models.HabitTypeDate:
		return logValue(t, h, t.Now.In(t.Location()).Format(time.RFC3339))
	case models.HabitTypeCheckbox:
		return logValue(t, h, "true")
	}
	promptValue(t, h)
	return nil
}

func promptValue(t *Turn, h models.HabitProperty) {
	t.Session.Flow = models.LoggingFlow(&h)
	t.Session.Step = LogStepAwaitValue
	meta := t.Session.Meta(h.ID)
	t.Reply(fmt.Sprintf("Please provide data for the habit: %s\n\nOr go /back", h.Name), RecentValuesKeyboard(meta.RecentValues))
}

func logValue(t *Turn, h models.HabitProperty, value string) error {
	if err := t.Source.LogHabit(t.Ctx, h.ID, value); err != nil {
		switch habitsource.KindOf(err) {
		case habitsource.KindValidation:
			t.Reply(err.Error(), nil)
			promptValue(t, h)
			return nil
		case habitsource.KindNotFound:
			t.Reply(msgHabitNotFound, models.RemoveKeyboard())
			t.Leave()
			return nil
		}
		return err
	}

	recent := value
	if v, err := habit.ValidateValue(value, h.Type); err == nil {
		recent = v.Canonical()
	}
	t.Session.SetMeta(h.ID, habit.Reconcile(t.Session.Meta(h.ID), recent, t.Now, t.Location()))
	slog.Info("flow.logValue: habit logged", "chatKey", t.Update.ChatKey, "habit", h.Name, "streak", t.Session.Meta(h.ID).Streak)

	t.Reply(h.Name+" Saved!", models.RemoveKeyboard())
	replyDefault(t)
	t.Leave()
	return nil
}
