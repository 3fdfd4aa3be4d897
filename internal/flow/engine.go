// Package flow implements the per-chat scene engine of HabitPipe.
//
// A scene is a multi-turn dialog registered as a table of handlers. All dialog state lives in
// the chat's models.Session, so the engine itself is stateless and safe for concurrent use
// across chats.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/store"
)

// MaxEnterChain bounds how many scene transitions a single update may trigger.
const MaxEnterChain = 8

// ErrEnterLoop is returned when scene transitions exceed MaxEnterChain.
var ErrEnterLoop = errors.New("scene enter chain too long")

// Handler runs one step of a dialog.
type Handler func(t *Turn) error

// ActionRoute maps callback data with the given prefix to a handler.
type ActionRoute struct {
	Prefix  string
	Handler Handler
}

// Scene is a registered dialog. Commands are only those the scene handles itself (e.g. back);
// any other command reaches OnText as raw text while the scene is active.
type Scene struct {
	ID       models.SceneID
	OnEnter  Handler
	Commands map[string]Handler
	OnText   Handler
	Actions  []ActionRoute
}

// Engine routes updates to scenes and global handlers.
type Engine struct {
	scenes   map[models.SceneID]*Scene
	commands map[string]Handler
	actions  []ActionRoute
	fallback Handler
	users    store.UserStore
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithUserStore sets the store used by scenes that edit user settings.
func WithUserStore(users store.UserStore) Option {
	return func(e *Engine) { e.users = users }
}

// NewEngine creates an Engine without scenes or global handlers.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		scenes:   make(map[models.SceneID]*Scene),
		commands: make(map[string]Handler),
		now:      time.Now,
		fallback: func(t *Turn) error { return nil },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds scenes. Registering an id twice panics.
func (e *Engine) Register(scenes ...Scene) {
	for i := range scenes {
		sc := scenes[i]
		if sc.ID == models.SceneNone {
			panic("flow: scene registered without id")
		}
		if _, dup := e.scenes[sc.ID]; dup {
			panic(fmt.Sprintf("flow: scene %s registered twice", sc.ID))
		}
		e.scenes[sc.ID] = &sc
		slog.Debug("Engine.Register: scene registered", "scene", sc.ID)
	}
}

// HandleCommand registers a global command handler, used when no scene is active.
func (e *Engine) HandleCommand(name string, h Handler) {
	e.commands[name] = h
}

// HandleAction registers a global callback handler for data starting with prefix.
func (e *Engine) HandleAction(prefix string, h Handler) {
	e.actions = append(e.actions, ActionRoute{Prefix: prefix, Handler: h})
}

// SetDefault sets the handler for updates nothing else claims.
func (e *Engine) SetDefault(h Handler) {
	e.fallback = h
}

// Run dispatches one update against session and applies the resulting scene transitions.
// It returns the replies produced, including those produced before a failure. On error the
// session is restored to its state before the update.
func (e *Engine) Run(ctx context.Context, update models.Update, user models.User, session *models.Session, source habitsource.Source) ([]models.Reply, error) {
	snapshot := session.Clone()
	t := &Turn{
		Ctx:     ctx,
		Update:  update,
		User:    user,
		Session: session,
		Source:  source,
		Now:     e.now(),
		engine:  e,
	}

	err := e.dispatch(t)
	if err == nil {
		err = e.applyTransitions(t)
	}
	if err != nil {
		slog.Warn("Engine.Run: handler failed, session rolled back", "chatKey", update.ChatKey, "scene", session.Scene, "error", err)
		*session = *snapshot
		return t.replies, err
	}
	slog.Debug("Engine.Run: update handled", "chatKey", update.ChatKey, "scene", session.Scene, "step", session.Step, "replies", len(t.replies))
	return t.replies, nil
}

func (e *Engine) dispatch(t *Turn) error {
	u := t.Update
	if t.Session.Active() {
		sc, ok := e.scenes[t.Session.Scene]
		if !ok {
			slog.Warn("Engine.dispatch: unknown scene in session, clearing", "scene", t.Session.Scene)
			t.Session.Clear()
		} else {
			switch u.Kind {
			case models.UpdateCommand:
				if h, ok := sc.Commands[u.Payload]; ok {
					return h(t)
				}
				if sc.OnText != nil {
					return sc.OnText(t)
				}
			case models.UpdateAction:
				if h := matchAction(sc.Actions, u.Payload); h != nil {
					return h(t)
				}
			default:
				if sc.OnText != nil {
					return sc.OnText(t)
				}
			}
		}
	}

	switch u.Kind {
	case models.UpdateCommand:
		if h, ok := e.commands[u.Payload]; ok {
			return h(t)
		}
	case models.UpdateAction:
		if h := matchAction(e.actions, u.Payload); h != nil {
			return h(t)
		}
		slog.Debug("Engine.dispatch: unhandled action", "data", u.Payload)
		return nil
	}
	return e.fallback(t)
}

func (e *Engine) applyTransitions(t *Turn) error {
	for i := 0; t.next != nil; i++ {
		if i >= MaxEnterChain {
			return ErrEnterLoop
		}
		tr := *t.next
		t.next = nil

		if tr.leave {
			slog.Debug("Engine: leaving scene", "scene", t.Session.Scene)
			t.Session.Clear()
			continue
		}
		sc, ok := e.scenes[tr.scene]
		if !ok {
			return fmt.Errorf("enter unknown scene %s", tr.scene)
		}
		t.Session.Scene = tr.scene
		t.Session.Step = 0
		t.Session.Flow = tr.flow
		slog.Debug("Engine: entering scene", "scene", tr.scene, "flow", tr.flow.Kind)
		if sc.OnEnter != nil {
			if err := sc.OnEnter(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchAction(routes []ActionRoute, data string) Handler {
	for _, r := range routes {
		if strings.HasPrefix(data, r.Prefix) {
			return r.Handler
		}
	}
	return nil
}

type transition struct {
	leave bool
	scene models.SceneID
	flow  models.Flow
}

// Turn is the context of a single update: the inbound update, the chat's session, the user and
// their habit source, plus the replies and transition the handlers produce.
type Turn struct {
	Ctx     context.Context
	Update  models.Update
	User    models.User
	Session *models.Session
	// Source is nil when the user has not configured a habit database.
	Source habitsource.Source
	Now    time.Time

	engine  *Engine
	replies []models.Reply
	next    *transition
}

// Text returns the message text of the update, trimmed.
func (t *Turn) Text() string {
	if t.Update.Kind == models.UpdateCommand && t.Update.Text != "" {
		return strings.TrimSpace(t.Update.Text)
	}
	return strings.TrimSpace(t.Update.Payload)
}

// Location is the user's timezone.
func (t *Turn) Location() *time.Location {
	return t.User.Location()
}

// Users returns the user store, nil when the engine has none.
func (t *Turn) Users() store.UserStore {
	return t.engine.users
}

// Reply queues a plain text reply.
func (t *Turn) Reply(text string, kb *models.Keyboard) {
	t.ReplyWith(models.Reply{Text: text, Keyboard: kb})
}

// ReplyWith queues a reply.
func (t *Turn) ReplyWith(r models.Reply) {
	t.replies = append(t.replies, r)
}

// Replies returns the queued replies.
func (t *Turn) Replies() []models.Reply {
	return t.replies
}

// Enter switches to scene id with an empty flow once the current handler returns.
func (t *Turn) Enter(id models.SceneID) {
	t.EnterWith(id, models.NoFlow())
}

// EnterWith switches to scene id with a pre-populated flow once the current handler returns.
func (t *Turn) EnterWith(id models.SceneID, f models.Flow) {
	t.next = &transition{scene: id, flow: f}
}

// Leave ends the active scene once the current handler returns.
func (t *Turn) Leave() {
	t.next = &transition{leave: true}
}
