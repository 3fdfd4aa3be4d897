// Package habit provides the pure habit logic of HabitPipe: value validation, recent-value and
// streak reconciliation, numeric aggregation and the habit name codec.
//
// Nothing in this package performs I/O.
package habit

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/HabitPipe/internal/models"
)

// ValidationError reports that a raw value does not match the habit type.
type ValidationError struct {
	Type    models.HabitType
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Value is a raw user value validated against a habit type.
type Value struct {
	Type     models.HabitType
	Raw      string
	Checkbox bool
	Number   float64
	Date     time.Time
}

// dateLayouts are the accepted ISO-8601 shapes for DATE habits, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ValidateValue checks raw against the habit type and returns the typed value.
func ValidateValue(raw string, t models.HabitType) (Value, error) {
	trimmed := strings.TrimSpace(raw)
	switch t {
	case models.HabitTypeCheckbox:
		switch strings.ToLower(trimmed) {
		case "true":
			return Value{Type: t, Raw: trimmed, Checkbox: true}, nil
		case "false":
			return Value{Type: t, Raw: trimmed, Checkbox: false}, nil
		}
		return Value{}, &ValidationError{Type: t, Value: raw, Message: `Checkbox value must be "true" or "false"`}
	case models.HabitTypeNumber:
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return Value{}, &ValidationError{Type: t, Value: raw, Message: "Number value must be numeric"}
		}
		return Value{Type: t, Raw: trimmed, Number: n}, nil
	case models.HabitTypeDate:
		if d, ok := ParseDate(trimmed); ok {
			return Value{Type: t, Raw: trimmed, Date: d}, nil
		}
		return Value{}, &ValidationError{Type: t, Value: raw, Message: "Date must be valid date string"}
	default:
		return Value{}, &ValidationError{Type: t, Value: raw, Message: fmt.Sprintf("Unsupported habit type: %s", t)}
	}
}

// ParseDate parses an ISO-8601 date or date-time.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// AggregateNumberLog folds a new NUMBER log into today's total.
func AggregateNumberLog(previous *float64, value float64) float64 {
	if previous != nil {
		return *previous + value
	}
	return value
}

// FormatNumber renders a number the way users typed it (no trailing zeros).
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Canonical renders v in one form per value, so "20", "20.0" and "2e1" compare equal.
func (v Value) Canonical() string {
	switch v.Type {
	case models.HabitTypeCheckbox:
		return strconv.FormatBool(v.Checkbox)
	case models.HabitTypeNumber:
		return FormatNumber(v.Number)
	default:
		return v.Raw
	}
}
