package messaging

import (
	"context"
	"sync"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// SentMessage is a reply recorded by MockService.
type SentMessage struct {
	ChatKey string
	Reply   models.Reply
}

// MockService is an in-memory Service for tests.
type MockService struct {
	mu       sync.Mutex
	sent     []SentMessage
	answered []string
	updates  chan models.Update
	stopped  bool
	// SendErr, when set, is returned by SendMessage.
	SendErr error
}

// NewMockService creates a MockService.
func NewMockService() *MockService {
	return &MockService{updates: make(chan models.Update, DefaultChannelBufferSize)}
}

// Push enqueues an inbound update.
func (m *MockService) Push(u models.Update) {
	m.updates <- u
}

// SendMessage implements Service.
func (m *MockService) SendMessage(ctx context.Context, chatKey string, reply models.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, SentMessage{ChatKey: chatKey, Reply: reply})
	return nil
}

// EditMessage implements Service.
func (m *MockService) EditMessage(ctx context.Context, chatKey string, messageID int, reply models.Reply) error {
	reply.EditMessageID = messageID
	return m.SendMessage(ctx, chatKey, reply)
}

// AnswerAction implements Service.
func (m *MockService) AnswerAction(ctx context.Context, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, callbackID)
	return nil
}

// Start implements Service.
func (m *MockService) Start(ctx context.Context) error { return nil }

// Stop implements Service.
func (m *MockService) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.updates)
	}
	return nil
}

// Updates implements Service.
func (m *MockService) Updates() <-chan models.Update {
	return m.updates
}

// Sent returns the recorded replies.
func (m *MockService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// SentTo returns the texts sent to chatKey.
func (m *MockService) SentTo(chatKey string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.ChatKey == chatKey {
			out = append(out, s.Reply.Text)
		}
	}
	return out
}

// Answered returns the acknowledged callback ids.
func (m *MockService) Answered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.answered...)
}

var _ Service = (*MockService)(nil)
