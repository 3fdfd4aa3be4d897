// Package messaging connects HabitPipe to a chat transport and runs inbound updates through
// the scene engine.
package messaging

import (
	"context"
	"time"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer size of the inbound update channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long a transport waits to enqueue an update.
	DefaultChannelTimeout = 1 * time.Second
)

// Service defines a pluggable chat transport.
type Service interface {
	// SendMessage sends reply to the chat. A reply with EditMessageID edits that message.
	SendMessage(ctx context.Context, chatKey string, reply models.Reply) error

	// EditMessage replaces the text and inline keyboard of a sent message.
	EditMessage(ctx context.Context, chatKey string, messageID int, reply models.Reply) error

	// AnswerAction acknowledges a callback so the client stops its progress indicator.
	AnswerAction(ctx context.Context, callbackID, text string) error

	// Start begins receiving updates (e.g., long polling).
	Start(ctx context.Context) error

	// Stop stops receiving updates and closes the Updates channel.
	Stop() error

	// Updates returns the channel of normalized inbound updates.
	Updates() <-chan models.Update
}
