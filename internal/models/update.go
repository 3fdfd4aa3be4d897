package models

// UpdateKind is the normalized kind of an inbound update.
type UpdateKind string

const (
	UpdateText    UpdateKind = "text"
	UpdateCommand UpdateKind = "command"
	UpdateAction  UpdateKind = "action"
)

// Update is one inbound user action, normalized by the transport.
type Update struct {
	ID         string     `json:"id"`
	ChatKey    string     `json:"chat_key"`
	SenderID   string     `json:"sender_id"`
	SenderName string     `json:"sender_name,omitempty"`
	Kind       UpdateKind `json:"kind"`
	// Payload is the text, the command name without slash, or the callback data.
	Payload string `json:"payload"`
	// Args holds command arguments; Text holds the raw message text of commands.
	Args       string `json:"args,omitempty"`
	Text       string `json:"text,omitempty"`
	CallbackID string `json:"callback_id,omitempty"`
	MessageID  int    `json:"message_id,omitempty"`
}

// Button is one keyboard button. Data is only used by inline keyboards.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data,omitempty"`
}

// Keyboard describes a quick-reply or inline keyboard.
type Keyboard struct {
	Inline  bool       `json:"inline,omitempty"`
	OneTime bool       `json:"one_time,omitempty"`
	Resize  bool       `json:"resize,omitempty"`
	Remove  bool       `json:"remove,omitempty"`
	Rows    [][]Button `json:"rows,omitempty"`
}

// RemoveKeyboard hides any reply keyboard.
func RemoveKeyboard() *Keyboard {
	return &Keyboard{Remove: true}
}

// ParseMode values understood by the transport.
const (
	ParseModePlain    = ""
	ParseModeHTML     = "HTML"
	ParseModeMarkdown = "MarkdownV2"
)

// Reply is an outbound message request. A non-zero EditMessageID edits that message instead.
type Reply struct {
	Text          string    `json:"text"`
	ParseMode     string    `json:"parse_mode,omitempty"`
	Keyboard      *Keyboard `json:"keyboard,omitempty"`
	EditMessageID int       `json:"edit_message_id,omitempty"`
}
