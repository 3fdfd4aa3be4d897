// Package models defines session state structures for HabitPipe dialogs.
package models

import "time"

// MaxRecentValues caps HabitMeta.RecentValues.
const MaxRecentValues = 3

// HabitMeta is the per-habit bookkeeping kept in the session.
type HabitMeta struct {
	RecentValues []string   `json:"recentValues"`
	LastRecorded *time.Time `json:"lastRecorded,omitempty"`
	Streak       int        `json:"streak"`
}

// HabitDraft is the partially entered habit of the creation flow.
type HabitDraft struct {
	Text  string    `json:"text,omitempty"`
	Emoji string    `json:"emoji,omitempty"`
	Type  HabitType `json:"type,omitempty"`
}

// Flow is the in-progress dialog payload of a session. Exactly one variant is populated,
// selected by Kind; the zero value is FlowNone.
type Flow struct {
	Kind  FlowKind       `json:"kind,omitempty"`
	Habit *HabitProperty `json:"habit,omitempty"` // logging, removing, reminding
	Draft *HabitDraft    `json:"draft,omitempty"` // creating
}

// NoFlow returns the empty flow.
func NoFlow() Flow { return Flow{} }

// LoggingFlow is a logging dialog, optionally with a pre-selected habit.
func LoggingFlow(h *HabitProperty) Flow { return Flow{Kind: FlowLogging, Habit: h} }

// CreatingFlow is a habit creation dialog.
func CreatingFlow(d HabitDraft) Flow { return Flow{Kind: FlowCreating, Draft: &d} }

// RemovingFlow is a habit removal dialog.
func RemovingFlow(h *HabitProperty) Flow { return Flow{Kind: FlowRemoving, Habit: h} }

// RemindingFlow is a reminder edit dialog.
func RemindingFlow(h *HabitProperty) Flow { return Flow{Kind: FlowReminding, Habit: h} }

// SelectedHabit returns the habit carried by the flow, if its variant carries one.
func (f Flow) SelectedHabit() *HabitProperty {
	switch f.Kind {
	case FlowLogging, FlowRemoving, FlowReminding:
		return f.Habit
	default:
		return nil
	}
}

// Session is the durable per-chat document.
type Session struct {
	Scene     SceneID              `json:"scene,omitempty"`
	Step      int                  `json:"step"`
	Flow      Flow                 `json:"flow"`
	HabitMeta map[string]HabitMeta `json:"habitMeta"`
}

// NewSession returns the default session for a chat that has none yet.
func NewSession() *Session {
	return &Session{HabitMeta: make(map[string]HabitMeta)}
}

// Active reports whether a scene is currently running.
func (s *Session) Active() bool {
	return s.Scene != SceneNone
}

// Meta returns the bookkeeping for habitID, zero valued when absent.
func (s *Session) Meta(habitID string) HabitMeta {
	if s.HabitMeta == nil {
		return HabitMeta{}
	}
	return s.HabitMeta[habitID]
}

// SetMeta stores the bookkeeping for habitID.
func (s *Session) SetMeta(habitID string, meta HabitMeta) {
	if s.HabitMeta == nil {
		s.HabitMeta = make(map[string]HabitMeta)
	}
	s.HabitMeta[habitID] = meta
}

// Clear ends any scene and drops its flow payload; habit metadata is kept.
func (s *Session) Clear() {
	s.Scene = SceneNone
	s.Step = 0
	s.Flow = NoFlow()
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := &Session{Scene: s.Scene, Step: s.Step, Flow: s.Flow.clone()}
	c.HabitMeta = make(map[string]HabitMeta, len(s.HabitMeta))
	for id, m := range s.HabitMeta {
		m.RecentValues = append([]string(nil), m.RecentValues...)
		if m.LastRecorded != nil {
			t := *m.LastRecorded
			m.LastRecorded = &t
		}
		c.HabitMeta[id] = m
	}
	return c
}

func (f Flow) clone() Flow {
	if f.Habit != nil {
		h := *f.Habit
		h.Reminders = append([]int(nil), h.Reminders...)
		f.Habit = &h
	}
	if f.Draft != nil {
		d := *f.Draft
		f.Draft = &d
	}
	return f
}
