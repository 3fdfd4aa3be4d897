package habit

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// ParseFullName derives a HabitProperty from its encoded name "<emoji> <text>[@h,h,...]".
func ParseFullName(id, fullName string, t models.HabitType) models.HabitProperty {
	namePart, remindersPart, _ := strings.Cut(fullName, "@")

	var reminders []int
	for _, piece := range strings.Split(remindersPart, ",") {
		hour, err := strconv.Atoi(strings.TrimSpace(piece))
		if err != nil || hour < 0 || hour > 23 {
			continue
		}
		reminders = append(reminders, hour)
	}
	sort.Ints(reminders)

	emoji, text, _ := strings.Cut(namePart, " ")
	return models.HabitProperty{
		ID:        id,
		FullName:  fullName,
		Name:      namePart,
		Text:      text,
		Emoji:     emoji,
		Type:      t,
		Reminders: reminders,
	}
}

// FormatFullName encodes a habit name. Reminders are written sorted.
func FormatFullName(emoji, text string, reminders []int) string {
	name := emoji + " " + text
	if len(reminders) == 0 {
		return name
	}
	sorted := append([]int(nil), reminders...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, r := range sorted {
		parts[i] = strconv.Itoa(r)
	}
	return name + "@" + strings.Join(parts, ",")
}

// IsEmoji reports whether s is a single space-free symbol token starting with an emoji.
// Keycaps ("1️⃣", "#️⃣") count; Latin-1 symbols such as "©" only with the emoji selector.
func IsEmoji(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	r, size := utf8.DecodeRuneInString(s)
	if isKeycapBase(r) {
		return isKeycapTail(s[size:])
	}
	if r < 0x2000 {
		next, _ := utf8.DecodeRuneInString(s[size:])
		return unicode.Is(unicode.So, r) && next == emojiSelector
	}
	if unicode.Is(unicode.So, r) {
		return true
	}
	// Regional indicators and pictographs outside So.
	return r >= 0x1F000 && r <= 0x1FAFF
}

const (
	emojiSelector = '\uFE0F'
	keycapMark    = '\u20E3'
)

func isKeycapBase(r rune) bool {
	return r == '#' || r == '*' || (r >= '0' && r <= '9')
}

// isKeycapTail matches the rest of a keycap sequence: an optional U+FE0F then U+20E3.
func isKeycapTail(s string) bool {
	s = strings.TrimPrefix(s, string(emojiSelector))
	r, size := utf8.DecodeRuneInString(s)
	return r == keycapMark && size == len(s)
}
