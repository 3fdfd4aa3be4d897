package flow

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// DatabaseIDLength is the length of a Notion database id without separators.
const DatabaseIDLength = 32

// NormalizeDatabaseID strips '-' and '_' from s and reports whether the rest is a 32-char
// hex id.
func NormalizeDatabaseID(s string) (string, bool) {
	id := strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(s))
	if len(id) != DatabaseIDLength {
		return "", false
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return "", false
		}
	}
	return strings.ToLower(id), true
}

func setDatabaseIDScene() Scene {
	return Scene{
		ID:       models.SceneSetDatabaseID,
		OnEnter:  setDatabaseIDEnter,
		Commands: backTo("Cancelled database ID setup."),
		OnText:   setDatabaseIDText,
	}
}

func setDatabaseIDEnter(t *Turn) error {
	t.Reply("Please enter your Notion Habit Database ID.\n\nOr go /back", models.RemoveKeyboard())
	return nil
}

func setDatabaseIDText(t *Turn) error {
	id, ok := NormalizeDatabaseID(t.Text())
	if !ok {
		t.Reply("Invalid database ID selection.", nil)
		return nil
	}
	users := t.Users()
	if users == nil {
		return ErrNoUserStore
	}
	if err := users.SetHabitDatabaseID(t.Ctx, t.User.TelegramID, id); err != nil {
		return fmt.Errorf("set database id: %w", err)
	}
	t.User.HabitDatabaseID = id
	slog.Info("flow.setDatabaseIDText: database id set", "chatKey", t.Update.ChatKey, "user", t.User.TelegramID)
	t.Reply("Database ID set!", nil)
	t.Leave()
	return nil
}

func setTimezoneScene() Scene {
	return Scene{
		ID:       models.SceneSetTimezone,
		OnEnter:  setTimezoneEnter,
		Commands: backTo("Cancelled timezone setup."),
		OnText:   setTimezoneText,
	}
}

func setTimezoneEnter(t *Turn) error {
	t.Reply(fmt.Sprintf("Please enter your timezone (e.g. %s).\nYour current timezone is %s.\n\nOr go /back", models.DefaultTimezone, t.Location()), models.RemoveKeyboard())
	return nil
}

// ValidTimezone reports whether name is an IANA timezone name.
func ValidTimezone(name string) bool {
	if name == "" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

func setTimezoneText(t *Turn) error {
	tz := t.Text()
	if !ValidTimezone(tz) {
		t.Reply("Invalid timezone. Please try again, e.g. Europe/Berlin.", nil)
		return nil
	}
	users := t.Users()
	if users == nil {
		return ErrNoUserStore
	}
	if err := users.SetTimezone(t.Ctx, t.User.TelegramID, tz); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	t.User.Timezone = tz
	slog.Info("flow.setTimezoneText: timezone set", "chatKey", t.Update.ChatKey, "user", t.User.TelegramID, "timezone", tz)
	t.Reply(fmt.Sprintf("Timezone set to %s!", tz), nil)
	t.Leave()
	return nil
}
