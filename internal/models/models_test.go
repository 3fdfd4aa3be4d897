package models

import (
	"encoding/json"
	"testing"
)

func TestParseHabitType(t *testing.T) {
	tests := []struct {
		in      string
		want    HabitType
		wantErr bool
	}{
		{"number", HabitTypeNumber, false},
		{"Checkbox", HabitTypeCheckbox, false},
		{" DATE ", HabitTypeDate, false},
		{"text", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseHabitType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHabitType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseHabitType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionClearKeepsMeta(t *testing.T) {
	s := NewSession()
	s.Scene = SceneLogHabit
	s.Step = 1
	s.Flow = LoggingFlow(&HabitProperty{ID: "a"})
	s.SetMeta("a", HabitMeta{Streak: 2})

	s.Clear()

	if s.Active() || s.Step != 0 || s.Flow.Kind != FlowNone {
		t.Errorf("session not cleared: %+v", s)
	}
	if s.Meta("a").Streak != 2 {
		t.Error("habit meta should survive Clear")
	}
}

func TestFlowSelectedHabitOnlyForHabitVariants(t *testing.T) {
	h := &HabitProperty{ID: "a"}
	if CreatingFlow(HabitDraft{Text: "x"}).SelectedHabit() != nil {
		t.Error("creating flow must not expose a habit")
	}
	if RemovingFlow(h).SelectedHabit() != h {
		t.Error("removing flow should expose its habit")
	}
	if (Flow{Kind: FlowNone, Habit: h}).SelectedHabit() != nil {
		t.Error("empty flow must not expose a habit")
	}
}

func TestSessionDefaultDocumentShape(t *testing.T) {
	data, err := json.Marshal(NewSession())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if doc["step"] != float64(0) {
		t.Errorf("expected step 0, got %v", doc["step"])
	}
	if meta, ok := doc["habitMeta"].(map[string]interface{}); !ok || len(meta) != 0 {
		t.Errorf("expected empty habitMeta object, got %v", doc["habitMeta"])
	}
}

func TestPageValueDone(t *testing.T) {
	n := 0.0
	if !(PageValue{Type: HabitTypeNumber, Number: &n}).Done() {
		t.Error("number with a value should be done")
	}
	if (PageValue{Type: HabitTypeCheckbox}).Done() {
		t.Error("unchecked checkbox should not be done")
	}
	if !(PageValue{Type: HabitTypeDate, Date: "2024-01-01T08:00:00Z"}).Done() {
		t.Error("date with start should be done")
	}
}
