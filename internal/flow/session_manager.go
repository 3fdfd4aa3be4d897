package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/store"
)

// SessionManager loads and saves chat sessions through a SessionStore.
type SessionManager struct {
	store store.SessionStore
}

// NewSessionManager creates a SessionManager backed by st.
func NewSessionManager(st store.SessionStore) *SessionManager {
	slog.Debug("Creating SessionManager")
	return &SessionManager{store: st}
}

// Load returns the session for chatKey. It never returns a nil session: a missing or
// undecodable session yields the default session. persisted is false when the store could
// not be read; the returned default must then not be saved over the stored one.
func (m *SessionManager) Load(ctx context.Context, chatKey string) (s *models.Session, persisted bool) {
	data, err := m.store.GetSession(ctx, chatKey)
	if err != nil {
		slog.Warn("SessionManager.Load: store failed, using in-memory session", "chatKey", chatKey, "error", err)
		return models.NewSession(), false
	}
	if data == nil {
		slog.Debug("SessionManager.Load: no session, using default", "chatKey", chatKey)
		return models.NewSession(), true
	}

	s = models.NewSession()
	if err := json.Unmarshal(data, s); err != nil {
		slog.Warn("SessionManager.Load: undecodable session, using default", "chatKey", chatKey, "error", err)
		return models.NewSession(), true
	}
	if s.HabitMeta == nil {
		s.HabitMeta = make(map[string]models.HabitMeta)
	}
	slog.Debug("SessionManager.Load: session loaded", "chatKey", chatKey, "scene", s.Scene, "step", s.Step)
	return s, true
}

// Save overwrites the session for chatKey.
func (m *SessionManager) Save(ctx context.Context, chatKey string, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session for %s: %w", chatKey, err)
	}
	if err := m.store.SetSession(ctx, chatKey, data); err != nil {
		return fmt.Errorf("save session for %s: %w", chatKey, err)
	}
	slog.Debug("SessionManager.Save: session saved", "chatKey", chatKey, "scene", s.Scene, "step", s.Step)
	return nil
}
