package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/store"
)

type brokenSessionStore struct{}

func (brokenSessionStore) GetSession(ctx context.Context, chatKey string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenSessionStore) SetSession(ctx context.Context, chatKey string, data []byte) error {
	return errors.New("connection refused")
}

func (brokenSessionStore) DeleteSession(ctx context.Context, chatKey string) error {
	return errors.New("connection refused")
}

func TestSessionManager_DefaultWhenAbsent(t *testing.T) {
	sm := NewSessionManager(store.NewInMemoryStore())
	s, persisted := sm.Load(context.Background(), "chat-1")
	if s == nil {
		t.Fatal("Load returned nil")
	}
	if !persisted {
		t.Error("Expected an absent session to count as persisted")
	}
	if s.Active() || s.Step != 0 || s.HabitMeta == nil {
		t.Errorf("Expected default session, got %+v", s)
	}
}

func TestSessionManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	sm := NewSessionManager(store.NewInMemoryStore())
	last := time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)

	s := models.NewSession()
	s.Scene = models.SceneRemoveHabit
	s.Step = RemoveStepConfirm
	s.Flow = models.RemovingFlow(&models.HabitProperty{ID: "h1", FullName: "📚 Read", Name: "📚 Read", Text: "Read", Emoji: "📚", Type: models.HabitTypeCheckbox})
	s.SetMeta("h1", models.HabitMeta{RecentValues: []string{"true"}, LastRecorded: &last, Streak: 3})

	if err := sm.Save(ctx, "chat-1", s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, _ := sm.Load(ctx, "chat-1")
	if got.Scene != models.SceneRemoveHabit || got.Step != RemoveStepConfirm {
		t.Errorf("Scene/step not restored: %+v", got)
	}
	h := got.Flow.SelectedHabit()
	if h == nil || h.Text != "Read" {
		t.Fatalf("Flow habit not restored: %+v", got.Flow)
	}
	meta := got.Meta("h1")
	if meta.Streak != 3 || len(meta.RecentValues) != 1 || meta.LastRecorded == nil || !meta.LastRecorded.Equal(last) {
		t.Errorf("Habit meta not restored: %+v", meta)
	}
}

func TestSessionManager_UndecodableIsDefault(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	if err := st.SetSession(ctx, "chat-1", []byte("{not json")); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}
	s, persisted := NewSessionManager(st).Load(ctx, "chat-1")
	if !persisted {
		t.Error("Expected a corrupt session to be replaceable")
	}
	if s.Active() || s.HabitMeta == nil {
		t.Errorf("Expected default session, got %+v", s)
	}
}

func TestSessionManager_NullHabitMetaIsNormalized(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	_ = st.SetSession(ctx, "chat-1", []byte(`{"scene":"LOG_HABIT_SCENE","step":1,"habitMeta":null}`))
	s, _ := NewSessionManager(st).Load(ctx, "chat-1")
	if s.HabitMeta == nil {
		t.Error("Expected habitMeta to be initialized")
	}
	if s.Scene != models.SceneLogHabit || s.Step != 1 {
		t.Errorf("Unexpected session %+v", s)
	}
}

func TestSessionManager_StoreFailures(t *testing.T) {
	sm := NewSessionManager(brokenSessionStore{})
	s, persisted := sm.Load(context.Background(), "chat-1")
	if s == nil || s.Active() {
		t.Errorf("Expected default session on store failure, got %+v", s)
	}
	if persisted {
		t.Error("Expected persisted=false when the store cannot be read")
	}
	if err := sm.Save(context.Background(), "chat-1", s); err == nil {
		t.Error("Expected Save to report the store failure")
	}
}
