package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/HabitPipe/internal/habitsource/memory"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/store"
)

// mockTB records failures instead of failing the enclosing test.
type mockTB struct {
	failed bool
	fatal  bool
	msgs   []string
}

func (m *mockTB) Helper() {}

func (m *mockTB) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.msgs = append(m.msgs, fmt.Sprintf(format, args...))
}

func (m *mockTB) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.fatal = true
	m.msgs = append(m.msgs, fmt.Sprintf(format, args...))
}

func TestSeedUser(t *testing.T) {
	st := store.NewInMemoryStore()
	u := SeedUser(t, st, "42", "Europe/Berlin", "db1")
	if u.TelegramID != "42" || u.Timezone != "Europe/Berlin" || u.HabitDatabaseID != "db1" {
		t.Fatalf("unexpected user %+v", u)
	}

	users, err := st.ListUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].HabitDatabaseID != "db1" || users[0].Timezone != "Europe/Berlin" {
		t.Errorf("store not updated: %+v", users)
	}
}

func TestSeedUser_DefaultsKept(t *testing.T) {
	st := store.NewInMemoryStore()
	u := SeedUser(t, st, "7", "", "")
	if u.Timezone != models.DefaultTimezone {
		t.Errorf("expected default timezone, got %q", u.Timezone)
	}
	if u.HabitDatabaseID != "" {
		t.Errorf("expected no database, got %q", u.HabitDatabaseID)
	}
}

func TestSeedHabit(t *testing.T) {
	registry := memory.NewRegistry()
	h := SeedHabit(t, registry, "db", "Read", "📚", models.HabitTypeCheckbox, 9, 18)
	if h.Emoji != "📚" || h.Text != "Read" {
		t.Errorf("unexpected habit %+v", h)
	}
	if !h.HasReminder(9) || !h.HasReminder(18) || h.HasReminder(10) {
		t.Errorf("unexpected reminders %v", h.Reminders)
	}

	plain := SeedHabit(t, registry, "db", "Walk", "🚶", models.HabitTypeNumber)
	if len(plain.Reminders) != 0 {
		t.Errorf("expected no reminders, got %v", plain.Reminders)
	}
}

func TestSeedHabit_DuplicateFails(t *testing.T) {
	registry := memory.NewRegistry()
	SeedHabit(t, registry, "db", "Read", "📚", models.HabitTypeCheckbox)

	m := &mockTB{}
	SeedHabit(m, registry, "db", "Read", "📚", models.HabitTypeCheckbox)
	if !m.fatal {
		t.Errorf("expected a fatal failure for a duplicate habit, got %v", m.msgs)
	}
}

func TestAssertHTTPStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteHeader(404)

	m := &mockTB{}
	AssertHTTPStatus(m, 404, rr, "match")
	if m.failed {
		t.Errorf("unexpected failure: %v", m.msgs)
	}

	m = &mockTB{}
	AssertHTTPStatus(m, 200, rr, "mismatch")
	if !m.failed {
		t.Error("expected failure on status mismatch")
	}
}

func TestAssertAPIStatus(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		expected  models.APIStatus
		wantFail  bool
		wantFatal bool
	}{
		{"ok", `{"status":"ok","result":{"sent":2}}`, models.APIStatusOK, false, false},
		{"mismatch", `{"status":"error","message":"x"}`, models.APIStatusOK, true, false},
		{"missing", `{"result":1}`, models.APIStatusOK, true, false},
		{"not json", `nope`, models.APIStatusOK, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.body)
			m := &mockTB{}
			res := AssertAPIStatus(m, rr, tt.expected)
			if m.failed != tt.wantFail || m.fatal != tt.wantFatal {
				t.Errorf("failed=%v fatal=%v, want %v %v (%v)", m.failed, m.fatal, tt.wantFail, tt.wantFatal, m.msgs)
			}
			if tt.name == "ok" && res.Get("result.sent").Int() != 2 {
				t.Errorf("parsed body not returned: %s", res.Raw)
			}
		})
	}
}
