package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so callers and handlers can react without
// string-matching messages.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindTransitionNotAllowed
	KindCommentRequired
	KindConditionNotMet
	KindConcurrentModification
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransitionNotAllowed:
		return "transition_not_allowed"
	case KindCommentRequired:
		return "comment_required"
	case KindConditionNotMet:
		return "condition_not_met"
	case KindConcurrentModification:
		return "concurrent_modification"
	default:
		return "unknown"
	}
}

// Error is the error type returned by all services in this module.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

func TransitionNotAllowed(format string, args ...interface{}) *Error {
	return newf(KindTransitionNotAllowed, format, args...)
}

func CommentRequired(format string, args ...interface{}) *Error {
	return newf(KindCommentRequired, format, args...)
}

func ConditionNotMet(format string, args ...interface{}) *Error {
	return newf(KindConditionNotMet, format, args...)
}

func ConcurrentModification(format string, args ...interface{}) *Error {
	return newf(KindConcurrentModification, format, args...)
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(err error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// HTTPStatus maps an error kind to the HTTP status the API layer should
// respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindCommentRequired:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindConcurrentModification:
		return http.StatusConflict
	case KindTransitionNotAllowed, KindConditionNotMet:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
