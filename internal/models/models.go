// Package models defines the core data structures for HabitPipe.
//
// It includes habit properties, per-day habit pages, users and the API response envelope,
// which are shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// HabitType determines how a logged value is validated and aggregated.
type HabitType string

const (
	// HabitTypeNumber is a cumulative per-day numeric habit.
	HabitTypeNumber HabitType = "number"
	// HabitTypeCheckbox is a yes/no habit.
	HabitTypeCheckbox HabitType = "checkbox"
	// HabitTypeDate records a point in time (e.g. when a habit was started).
	HabitTypeDate HabitType = "date"
)

// DefaultTimezone is used for users that never set one. It is overridable at startup.
var DefaultTimezone = "America/New_York"

// Reserved property names of the habit database that are not habits.
const (
	PropertyDate  = "Date"
	PropertyIndex = "Index"
)

// Error variables for better error handling and testability
var (
	ErrInvalidHabitType = errors.New("invalid habit type")
	ErrEmptyHabitText   = errors.New("habit text cannot be empty")
	ErrEmptyHabitEmoji  = errors.New("habit emoji cannot be empty")
)

// IsValidHabitType checks if the given habit type is supported.
func IsValidHabitType(t HabitType) bool {
	switch t {
	case HabitTypeNumber, HabitTypeCheckbox, HabitTypeDate:
		return true
	default:
		return false
	}
}

// ParseHabitType parses a case-insensitive habit type name.
func ParseHabitType(s string) (HabitType, error) {
	t := HabitType(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidHabitType(t) {
		return "", ErrInvalidHabitType
	}
	return t, nil
}

// HabitProperty represents one tracked habit.
//
// FullName is the single source of truth ("<emoji> <text>[@h,h,...]"); the remaining
// descriptive fields are derived from it and must never be edited independently.
type HabitProperty struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	Emoji     string    `json:"emoji"`
	Type      HabitType `json:"type"`
	Reminders []int     `json:"reminders,omitempty"`
}

// HasReminder reports whether hour is one of the habit's reminder hours.
func (h HabitProperty) HasReminder(hour int) bool {
	for _, r := range h.Reminders {
		if r == hour {
			return true
		}
	}
	return false
}

// PageValue is one habit's recorded value on a day page.
type PageValue struct {
	Type     HabitType `json:"type"`
	Number   *float64  `json:"number,omitempty"`
	Checkbox bool      `json:"checkbox,omitempty"`
	Date     string    `json:"date,omitempty"`
}

// Done reports whether the value counts as a completed log.
func (v PageValue) Done() bool {
	switch v.Type {
	case HabitTypeCheckbox:
		return v.Checkbox
	case HabitTypeDate:
		return v.Date != ""
	case HabitTypeNumber:
		return v.Number != nil
	default:
		return false
	}
}

// TodayPage is a snapshot of one calendar day's recorded values, keyed by habit full name.
type TodayPage struct {
	ID     string               `json:"id"`
	Index  int                  `json:"index"`
	Date   string               `json:"date"` // YYYY-MM-DD
	Values map[string]PageValue `json:"values"`
}

// User is the bot user, owned by the user store.
type User struct {
	ID              int64     `json:"id"`
	TelegramID      string    `json:"telegram_id"`
	Name            string    `json:"name"`
	Timezone        string    `json:"timezone"`
	HabitDatabaseID string    `json:"habit_database_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Location resolves the user's timezone, falling back to DefaultTimezone and then UTC.
func (u User) Location() *time.Location {
	for _, name := range []string{u.Timezone, DefaultTimezone} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
