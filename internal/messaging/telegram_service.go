package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BTreeMap/HabitPipe/internal/flow"
	"github.com/BTreeMap/HabitPipe/internal/models"
)

// DefaultPollTimeout is the long polling timeout in seconds.
const DefaultPollTimeout = 60

// ErrInvalidChatKey is returned when a chat key is not a Telegram chat id.
var ErrInvalidChatKey = errors.New("invalid chat key")

// TelegramService implements Service on the Telegram Bot API.
type TelegramService struct {
	bot     *tgbotapi.BotAPI
	updates chan models.Update

	mu       sync.Mutex
	polling  bool
	stopped  bool
	stopPoll sync.Once
}

// TelegramOption configures a TelegramService.
type TelegramOption func(*telegramOpts)

type telegramOpts struct {
	endpoint string
	client   tgbotapi.HTTPClient
	debug    bool
}

// WithAPIEndpoint overrides the Bot API endpoint format ("<base>/bot%s/%s").
func WithAPIEndpoint(endpoint string) TelegramOption {
	return func(o *telegramOpts) { o.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for Bot API calls.
func WithHTTPClient(c tgbotapi.HTTPClient) TelegramOption {
	return func(o *telegramOpts) { o.client = c }
}

// WithDebug turns on request logging of the Bot API client.
func WithDebug(debug bool) TelegramOption {
	return func(o *telegramOpts) { o.debug = debug }
}

// NewTelegramService connects to the Bot API with token.
func NewTelegramService(token string, opts ...TelegramOption) (*TelegramService, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	o := telegramOpts{endpoint: tgbotapi.APIEndpoint, client: &http.Client{Timeout: (DefaultPollTimeout + 10) * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	bot.Debug = o.debug
	slog.Info("TelegramService connected", "bot", bot.Self.UserName)
	return &TelegramService{
		bot:     bot,
		updates: make(chan models.Update, DefaultChannelBufferSize),
	}, nil
}

// Start begins long polling.
func (s *TelegramService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.polling || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.polling = true
	s.mu.Unlock()

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = DefaultPollTimeout
	in := s.bot.GetUpdatesChan(cfg)
	slog.Info("TelegramService long polling started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Debug("TelegramService polling stopped by context")
				s.stopPolling()
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				s.enqueue(ctx, u)
			}
		}
	}()
	return nil
}

// Stop stops polling and closes the Updates channel.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.polling {
		s.stopPolling()
	}
	close(s.updates)
	slog.Info("TelegramService stopped")
	return nil
}

func (s *TelegramService) stopPolling() {
	s.stopPoll.Do(s.bot.StopReceivingUpdates)
}

// Updates implements Service.
func (s *TelegramService) Updates() <-chan models.Update {
	return s.updates
}

// HandleWebhookUpdate decodes a webhook request body and enqueues the update.
func (s *TelegramService) HandleWebhookUpdate(ctx context.Context, r *http.Request) error {
	u, err := s.bot.HandleUpdate(r)
	if err != nil {
		return fmt.Errorf("decode webhook update: %w", err)
	}
	s.enqueue(ctx, *u)
	return nil
}

// SetWebhook registers url with Telegram. A non-empty secret is echoed back by Telegram in
// the X-Telegram-Bot-Api-Secret-Token header.
func (s *TelegramService) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if _, err := s.bot.MakeRequest("setWebhook", params); err != nil {
		slog.Error("TelegramService SetWebhook failed", "error", err)
		return fmt.Errorf("set webhook: %w", err)
	}
	slog.Info("TelegramService webhook registered", "url", url)
	return nil
}

// DeleteWebhook removes any webhook so long polling can be used.
func (s *TelegramService) DeleteWebhook() error {
	if _, err := s.bot.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// SetCommands publishes the command menu.
func (s *TelegramService) SetCommands(commands []flow.CommandInfo) error {
	cmds := make([]tgbotapi.BotCommand, len(commands))
	for i, c := range commands {
		cmds[i] = tgbotapi.BotCommand{Command: c.Name, Description: c.Description}
	}
	if _, err := s.bot.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		slog.Error("TelegramService SetCommands failed", "error", err)
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

func (s *TelegramService) enqueue(ctx context.Context, u tgbotapi.Update) {
	update, ok := NormalizeUpdate(u)
	if !ok {
		slog.Debug("TelegramService ignoring update", "updateId", u.UpdateID)
		return
	}

	// Held while sending so Stop cannot close the channel underneath us.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	select {
	case s.updates <- update:
		slog.Debug("TelegramService update enqueued", "updateId", update.ID, "chatKey", update.ChatKey, "kind", update.Kind)
	case <-ctx.Done():
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TelegramService update channel full, dropping update", "updateId", update.ID, "chatKey", update.ChatKey)
	}
}

// NormalizeUpdate converts a Telegram update to a models.Update. It reports false for update
// types the bot does not handle.
func NormalizeUpdate(u tgbotapi.Update) (models.Update, bool) {
	id := strconv.Itoa(u.UpdateID)

	if cq := u.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
			return models.Update{}, false
		}
		return models.Update{
			ID:         id,
			ChatKey:    strconv.FormatInt(cq.Message.Chat.ID, 10),
			SenderID:   strconv.FormatInt(cq.From.ID, 10),
			SenderName: senderName(cq.From),
			Kind:       models.UpdateAction,
			Payload:    cq.Data,
			CallbackID: cq.ID,
			MessageID:  cq.Message.MessageID,
		}, true
	}

	msg := u.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.Text == "" {
		return models.Update{}, false
	}
	update := models.Update{
		ID:         id,
		ChatKey:    strconv.FormatInt(msg.Chat.ID, 10),
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: senderName(msg.From),
		Kind:       models.UpdateText,
		Payload:    msg.Text,
		MessageID:  msg.MessageID,
	}
	if msg.IsCommand() {
		update.Kind = models.UpdateCommand
		update.Payload = msg.Command()
		update.Args = msg.CommandArguments()
		update.Text = msg.Text
	}
	return update, true
}

func senderName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

func parseChatKey(chatKey string) (int64, error) {
	id, err := strconv.ParseInt(chatKey, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChatKey, chatKey)
	}
	return id, nil
}

// ReplyMarkup converts a keyboard to its Bot API representation; nil means no markup.
func ReplyMarkup(kb *models.Keyboard) interface{} {
	if kb == nil {
		return nil
	}
	if kb.Remove {
		return tgbotapi.NewRemoveKeyboard(true)
	}
	if kb.Inline {
		return inlineMarkup(kb)
	}
	rows := make([][]tgbotapi.KeyboardButton, len(kb.Rows))
	for i, row := range kb.Rows {
		rows[i] = make([]tgbotapi.KeyboardButton, len(row))
		for j, b := range row {
			rows[i][j] = tgbotapi.NewKeyboardButton(b.Label)
		}
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.OneTimeKeyboard = kb.OneTime
	markup.ResizeKeyboard = kb.Resize
	return markup
}

func inlineMarkup(kb *models.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, len(kb.Rows))
	for i, row := range kb.Rows {
		rows[i] = make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, b := range row {
			rows[i][j] = tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data)
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// SendMessage implements Service.
func (s *TelegramService) SendMessage(ctx context.Context, chatKey string, reply models.Reply) error {
	if reply.EditMessageID != 0 {
		return s.EditMessage(ctx, chatKey, reply.EditMessageID, reply)
	}
	chatID, err := parseChatKey(chatKey)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ParseMode = reply.ParseMode
	if markup := ReplyMarkup(reply.Keyboard); markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := s.bot.Send(msg); err != nil {
		slog.Error("TelegramService SendMessage error", "error", err, "chatKey", chatKey)
		return fmt.Errorf("send message to %s: %w", chatKey, err)
	}
	slog.Debug("TelegramService message sent", "chatKey", chatKey, "length", len(reply.Text))
	return nil
}

// EditMessage implements Service. Only inline keyboards survive an edit.
func (s *TelegramService) EditMessage(ctx context.Context, chatKey string, messageID int, reply models.Reply) error {
	chatID, err := parseChatKey(chatKey)
	if err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, reply.Text)
	edit.ParseMode = reply.ParseMode
	if reply.Keyboard != nil && reply.Keyboard.Inline {
		markup := inlineMarkup(reply.Keyboard)
		edit.ReplyMarkup = &markup
	}
	if _, err := s.bot.Send(edit); err != nil {
		slog.Error("TelegramService EditMessage error", "error", err, "chatKey", chatKey, "messageId", messageID)
		return fmt.Errorf("edit message %d in %s: %w", messageID, chatKey, err)
	}
	return nil
}

// AnswerAction implements Service.
func (s *TelegramService) AnswerAction(ctx context.Context, callbackID, text string) error {
	if _, err := s.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback %s: %w", callbackID, err)
	}
	return nil
}

var _ Service = (*TelegramService)(nil)
