package flow

import (
	"fmt"
	"html"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/BTreeMap/HabitPipe/internal/habit"
	"github.com/BTreeMap/HabitPipe/internal/models"
)

// Layout constants for keyboards and the TODAY table.
const (
	HabitKeyboardColumns  = 3
	InlineKeyboardColumns = 8
	HourKeyboardColumns   = 6
	StatusNameWidth       = 20
)

// Callback data of inline buttons.
const (
	ActionLogPrefix = "log:"
	ActionNewHabit  = "new_habit"
)

// CommandInfo describes a bot command for help text and the client command menu.
type CommandInfo struct {
	Name        string
	Description string
}

var commandList = []CommandInfo{
	{"new_habit", "Create a new habit to track"},
	{"log_habit", "Log your habit data for today"},
	{"list_habits", "List the habits you are tracking"},
	{"remove_habit", "Remove a habit you are tracking"},
	{"add_reminder", "Add an hourly reminder to a habit"},
	{"clear_reminders", "Clear the reminders of a habit"},
	{"set_database_id", "Set your Notion Habit Database ID"},
	{"set_timezone", "Set your timezone"},
	{"get_timezone", "Get your current timezone"},
	{"help", "Show this message"},
}

// Commands lists the user-facing commands.
func Commands() []CommandInfo {
	return append([]CommandInfo(nil), commandList...)
}

// typeChoice is a button of the habit type keyboard.
type typeChoice struct {
	Type  models.HabitType
	Name  string
	Emoji string
}

var typeChoices = []typeChoice{
	{models.HabitTypeNumber, "Number", "🔢"},
	{models.HabitTypeCheckbox, "Yes/No", "🔘"},
	{models.HabitTypeDate, "Time", "⏰"},
}

func (c typeChoice) label() string {
	return c.Emoji + " " + c.Name
}

// ParseTypeChoice accepts a type keyboard label, a label name or a raw type name.
func ParseTypeChoice(s string) (models.HabitType, bool) {
	s = strings.TrimSpace(s)
	for _, c := range typeChoices {
		if s == c.label() || strings.EqualFold(s, c.Name) {
			return c.Type, true
		}
	}
	t, err := models.ParseHabitType(s)
	return t, err == nil
}

func chunk(buttons []models.Button, size int) [][]models.Button {
	var rows [][]models.Button
	for i := 0; i < len(buttons); i += size {
		end := i + size
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// HabitKeyboard is a reply keyboard of habit names, three per row.
func HabitKeyboard(habits []models.HabitProperty) *models.Keyboard {
	if len(habits) == 0 {
		return models.RemoveKeyboard()
	}
	buttons := make([]models.Button, len(habits))
	for i, h := range habits {
		buttons[i] = models.Button{Label: h.Name}
	}
	return &models.Keyboard{Resize: true, Rows: chunk(buttons, HabitKeyboardColumns)}
}

// EmojiKeyboard is a one-time reply keyboard of habit emojis.
func EmojiKeyboard(habits []models.HabitProperty) *models.Keyboard {
	buttons := make([]models.Button, len(habits))
	for i, h := range habits {
		buttons[i] = models.Button{Label: h.Emoji}
	}
	return &models.Keyboard{OneTime: true, Resize: true, Rows: chunk(buttons, InlineKeyboardColumns)}
}

// RecentValuesKeyboard offers the recent values of a habit as quick replies.
func RecentValuesKeyboard(values []string) *models.Keyboard {
	if len(values) == 0 {
		return models.RemoveKeyboard()
	}
	row := make([]models.Button, len(values))
	for i, v := range values {
		row[i] = models.Button{Label: v}
	}
	return &models.Keyboard{OneTime: true, Resize: true, Rows: [][]models.Button{row}}
}

// TypeKeyboard offers the habit types.
func TypeKeyboard() *models.Keyboard {
	row := make([]models.Button, len(typeChoices))
	for i, c := range typeChoices {
		row[i] = models.Button{Label: c.label()}
	}
	return &models.Keyboard{OneTime: true, Resize: true, Rows: [][]models.Button{row}}
}

// HourKeyboard offers the 24 reminder hours.
func HourKeyboard() *models.Keyboard {
	buttons := make([]models.Button, 24)
	for h := range buttons {
		buttons[h] = models.Button{Label: fmt.Sprintf("%02d:00", h)}
	}
	return &models.Keyboard{OneTime: true, Resize: true, Rows: chunk(buttons, HourKeyboardColumns)}
}

// InlineHabitKeyboard is the inline emoji keyboard under the TODAY table.
func InlineHabitKeyboard(habits []models.HabitProperty) *models.Keyboard {
	buttons := make([]models.Button, len(habits))
	for i, h := range habits {
		buttons[i] = models.Button{Label: h.Emoji, Data: ActionLogPrefix + h.ID}
	}
	rows := chunk(buttons, InlineKeyboardColumns)
	rows = append(rows, []models.Button{{Label: "➕ New Habit", Data: ActionNewHabit}})
	return &models.Keyboard{Inline: true, Rows: rows}
}

// HabitStatus renders the TODAY status of one habit.
func HabitStatus(h models.HabitProperty, page *models.TodayPage) string {
	var v models.PageValue
	var ok bool
	if page != nil {
		v, ok = page.Values[h.FullName]
	}
	if !ok {
		return "□ Not done"
	}
	switch h.Type {
	case models.HabitTypeNumber:
		n := 0.0
		if v.Number != nil {
			n = *v.Number
		}
		return fmt.Sprintf("□ %s reps", habit.FormatNumber(n))
	default:
		if v.Done() {
			return "■ Completed"
		}
		return "□ Not done"
	}
}

// TodayTable renders the habits and their status for today, one line per habit.
func TodayTable(habits []models.HabitProperty, page *models.TodayPage) string {
	lines := make([]string, len(habits))
	for i, h := range habits {
		lines[i] = fmt.Sprintf("%s %s\t%s", h.Emoji, runewidth.FillRight(h.Text, StatusNameWidth), HabitStatus(h, page))
	}
	return strings.Join(lines, "\n")
}

const greeting = `🤖 Beep Boop!

I am the habit tracking bot!
I can help you stay accountable to your habits.`

// DefaultMessage renders the greeting, the command list and, when habits exist, the TODAY
// table, as HTML.
func DefaultMessage(habits []models.HabitProperty, page *models.TodayPage) string {
	var b strings.Builder
	b.WriteString(html.EscapeString(greeting))
	b.WriteString("\n\nHabit Commands:\n")
	for _, c := range commandList {
		fmt.Fprintf(&b, "  /%s - %s\n", c.Name, html.EscapeString(c.Description))
	}
	if len(habits) > 0 {
		b.WriteString("\n<b>TODAY</b>\n<pre>")
		b.WriteString(html.EscapeString(TodayTable(habits, page)))
		b.WriteString("</pre>")
	}
	return b.String()
}

// FormatReminders renders reminder hours as "9:00, 18:00".
func FormatReminders(hours []int) string {
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = fmt.Sprintf("%d:00", h)
	}
	return strings.Join(parts, ", ")
}

// HabitList renders the list_habits reply body.
func HabitList(habits []models.HabitProperty) string {
	lines := make([]string, len(habits))
	for i, h := range habits {
		line := fmt.Sprintf("%s (%s)", h.Name, h.Type)
		if len(h.Reminders) > 0 {
			line += " ⏰ " + FormatReminders(h.Reminders)
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
