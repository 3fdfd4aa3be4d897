// Package testutil provides fixtures shared by HabitPipe tests: seeded users, seeded in-memory
// habit databases and JSON response assertions.
package testutil

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/habitsource/memory"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/store"
)

// TB is the subset of testing.TB the helpers need, so failures can be captured in tests.
type TB interface {
	Helper()
	Fatalf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

var _ TB = (*testing.T)(nil)

// SeedUser creates a user, optionally with a timezone and a habit database.
func SeedUser(t TB, users store.UserStore, telegramID, timezone, databaseID string) models.User {
	t.Helper()
	ctx := context.Background()
	u, err := users.GetOrCreateUser(ctx, telegramID, "user "+telegramID)
	if err != nil {
		t.Fatalf("GetOrCreateUser(%s): %v", telegramID, err)
		return u
	}
	if timezone != "" {
		if err := users.SetTimezone(ctx, telegramID, timezone); err != nil {
			t.Fatalf("SetTimezone(%s): %v", telegramID, err)
		}
		u.Timezone = timezone
	}
	if databaseID != "" {
		if err := users.SetHabitDatabaseID(ctx, telegramID, databaseID); err != nil {
			t.Fatalf("SetHabitDatabaseID(%s): %v", telegramID, err)
		}
		u.HabitDatabaseID = databaseID
	}
	return u
}

// SeedHabit adds a habit to the in-memory database databaseID with the given reminder hours.
func SeedHabit(t TB, registry *memory.Registry, databaseID, text, emoji string, ht models.HabitType, hours ...int) models.HabitProperty {
	t.Helper()
	ctx := context.Background()
	db := habitsource.NewDatabase(databaseID, registry.Get(databaseID))
	if err := db.AddNewHabit(ctx, text, emoji, ht); err != nil {
		t.Fatalf("AddNewHabit(%s): %v", text, err)
		return models.HabitProperty{}
	}
	h, err := db.GetHabitByEmoji(ctx, emoji)
	if err != nil {
		t.Fatalf("GetHabitByEmoji(%s): %v", emoji, err)
		return models.HabitProperty{}
	}
	for _, hour := range hours {
		if err := db.AddReminderToHabit(ctx, h.ID, hour); err != nil {
			t.Fatalf("AddReminderToHabit(%s, %d): %v", text, hour, err)
		}
	}
	if len(hours) > 0 {
		id := h.ID
		if h, err = db.GetHabitByID(ctx, id); err != nil {
			t.Fatalf("GetHabitByID(%s): %v", id, err)
		}
	}
	return h
}

// AssertHTTPStatus checks the response status code.
func AssertHTTPStatus(t TB, expected int, rr *httptest.ResponseRecorder, context string) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("%s: expected status %d, got %d (body %s)", context, expected, rr.Code, rr.Body.String())
	}
}

// AssertAPIStatus checks the "status" field of an APIResponse body and returns the body.
func AssertAPIStatus(t TB, rr *httptest.ResponseRecorder, expected models.APIStatus) gjson.Result {
	t.Helper()
	body := rr.Body.String()
	if !gjson.Valid(body) {
		t.Fatalf("response is not JSON: %q", body)
		return gjson.Result{}
	}
	parsed := gjson.Parse(body)
	status := parsed.Get("status")
	if !status.Exists() {
		t.Errorf("response missing 'status' field: %s", body)
	} else if status.String() != string(expected) {
		t.Errorf("expected status %q, got %q", expected, status.String())
	}
	return parsed
}
