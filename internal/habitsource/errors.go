package habitsource

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/HabitPipe/internal/habit"
)

// ErrorKind classifies Source failures for callers that must branch on them.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindNotConfigured
	KindBackend
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindNotConfigured:
		return "not_configured"
	case KindBackend:
		return "backend"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified, user-presentable failure. Errors of the same kind match each other
// under errors.Is, so callers compare against the sentinels below.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict      = &Error{Kind: KindConflict, Message: "conflict"}
	ErrNotConfigured = &Error{Kind: KindNotConfigured, Message: "habit database not configured"}
)

func notFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// BackendError wraps an I/O or remote failure of the backend.
type BackendError struct {
	Op     string
	Status int
	Err    error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("habit source %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("habit source %s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Unknown errors are treated as backend failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var verr *habit.ValidationError
	if errors.As(err, &verr) {
		return KindValidation
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return KindBackend
}
