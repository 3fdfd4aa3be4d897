package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/BTreeMap/HabitPipe/internal/flow"
	"github.com/BTreeMap/HabitPipe/internal/habitsource"
	"github.com/BTreeMap/HabitPipe/internal/models"
	"github.com/BTreeMap/HabitPipe/internal/store"
	"github.com/BTreeMap/HabitPipe/internal/util"
)

// UpdateHandler runs inbound updates through the scene engine: one update at a time per chat,
// with the chat's session loaded before and saved after.
type UpdateHandler struct {
	svc      Service
	engine   *flow.Engine
	sessions *flow.SessionManager
	users    store.UserStore
	sources  habitsource.Factory
	dedup    store.DedupRepo
	locks    *util.KeyedMutex
}

// HandlerOption configures an UpdateHandler.
type HandlerOption func(*UpdateHandler)

// WithDedup drops updates whose id was already recorded.
func WithDedup(d store.DedupRepo) HandlerOption {
	return func(h *UpdateHandler) { h.dedup = d }
}

// WithChatLocks shares the per-chat locks with other components.
func WithChatLocks(locks *util.KeyedMutex) HandlerOption {
	return func(h *UpdateHandler) {
		if locks != nil {
			h.locks = locks
		}
	}
}

// NewUpdateHandler creates an UpdateHandler. sources may be nil, in which case no user has a
// habit source.
func NewUpdateHandler(svc Service, engine *flow.Engine, sessions *flow.SessionManager, users store.UserStore, sources habitsource.Factory, opts ...HandlerOption) *UpdateHandler {
	h := &UpdateHandler{
		svc:      svc,
		engine:   engine,
		sessions: sessions,
		users:    users,
		sources:  sources,
		locks:    util.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one update. Replies are sent even when the engine fails; a failed turn is
// answered with the error text and its session is not saved.
func (h *UpdateHandler) Handle(ctx context.Context, u models.Update) error {
	log := slog.With("correlationId", uuid.NewString(), "updateId", u.ID, "chatKey", u.ChatKey)

	if u.CallbackID != "" {
		if err := h.svc.AnswerAction(ctx, u.CallbackID, ""); err != nil {
			log.Warn("UpdateHandler.Handle: failed to answer callback", "error", err)
		}
	}

	if h.dedup != nil && u.ID != "" {
		inserted, err := h.dedup.RecordInbound(ctx, u.ID, u.ChatKey)
		if err != nil {
			log.Warn("UpdateHandler.Handle: dedup record failed, processing anyway", "error", err)
		} else if !inserted {
			log.Info("UpdateHandler.Handle: duplicate update skipped")
			return nil
		}
	}

	unlock := h.locks.Lock(u.ChatKey)
	defer unlock()

	user, err := h.users.GetOrCreateUser(ctx, u.SenderID, u.SenderName)
	if err != nil {
		log.Error("UpdateHandler.Handle: failed to load user", "error", err, "sender", u.SenderID)
		return fmt.Errorf("load user %s: %w", u.SenderID, err)
	}

	session, persisted := h.sessions.Load(ctx, u.ChatKey)
	source := h.sourceFor(user, log)

	log.Debug("UpdateHandler.Handle: dispatching", "kind", u.Kind, "scene", session.Scene, "step", session.Step)
	replies, runErr := h.engine.Run(ctx, u, user, session, source)

	for _, r := range replies {
		if err := h.svc.SendMessage(ctx, u.ChatKey, r); err != nil {
			log.Error("UpdateHandler.Handle: failed to send reply", "error", err)
		}
	}

	if runErr != nil {
		log.Error("UpdateHandler.Handle: turn failed", "error", runErr, "scene", session.Scene)
		if err := h.svc.SendMessage(ctx, u.ChatKey, models.Reply{Text: runErr.Error()}); err != nil {
			log.Error("UpdateHandler.Handle: failed to send error reply", "error", err)
		}
	} else if !persisted {
		log.Warn("UpdateHandler.Handle: session was not readable, discarding this turn's session changes")
	} else if err := h.sessions.Save(ctx, u.ChatKey, session); err != nil {
		log.Warn("UpdateHandler.Handle: failed to save session", "error", err)
	}

	if h.dedup != nil && u.ID != "" {
		if err := h.dedup.MarkProcessed(ctx, u.ID); err != nil {
			log.Warn("UpdateHandler.Handle: failed to mark update processed", "error", err)
		}
	}
	return runErr
}

func (h *UpdateHandler) sourceFor(user models.User, log *slog.Logger) habitsource.Source {
	if h.sources == nil {
		return nil
	}
	src, err := h.sources.ForUser(user)
	if err != nil {
		if !errors.Is(err, habitsource.ErrNotConfigured) {
			log.Warn("UpdateHandler.sourceFor: habit source unavailable", "error", err, "user", user.TelegramID)
		}
		return nil
	}
	return src
}

// Start consumes the service's updates until ctx is done or the channel closes. Chats are
// handled concurrently; a chat's updates run one after another in arrival order.
func (h *UpdateHandler) Start(ctx context.Context) {
	slog.Info("UpdateHandler starting update processing")

	queue := newChatQueue(func(u models.Update) {
		if err := h.Handle(ctx, u); err != nil {
			slog.Debug("UpdateHandler update finished with error", "updateId", u.ID, "error", err)
		}
	})

	go func() {
		defer slog.Info("UpdateHandler stopped update processing")
		for {
			select {
			case u, ok := <-h.svc.Updates():
				if !ok {
					slog.Debug("UpdateHandler updates channel closed")
					return
				}
				queue.push(u)
			case <-ctx.Done():
				slog.Debug("UpdateHandler stopping due to context cancellation")
				return
			}
		}
	}()
}
