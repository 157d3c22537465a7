// Package apperr defines the error taxonomy surfaced by the accounts service. Every error
// that crosses the HTTP boundary is either an *Error or is reported as a generic internal
// failure.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindConflict         Kind = "conflict"
	KindAuthentication   Kind = "authentication"
	KindNotFound         Kind = "not_found"
	KindMethod           Kind = "method_not_allowed"
	KindDependency       Kind = "dependency"
	KindTokenPersistence Kind = "token_persistence"
	KindInternal         Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindValidation:       http.StatusBadRequest,
	KindConflict:         http.StatusConflict,
	KindAuthentication:   http.StatusUnauthorized,
	KindNotFound:         http.StatusNotFound,
	KindMethod:           http.StatusMethodNotAllowed,
	KindDependency:       http.StatusInternalServerError,
	KindTokenPersistence: http.StatusInternalServerError,
	KindInternal:         http.StatusInternalServerError,
}

// Error is an application error with a caller-safe message. Err holds the internal cause,
// which is logged but never serialized.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind so callers can write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrAuthentication   = &Error{Kind: KindAuthentication}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrDependency       = &Error{Kind: KindDependency}
	ErrTokenPersistence = &Error{Kind: KindTokenPersistence}
)

// New constructs an error of the given kind.
func New(kind Kind, message string, details ...string) *Error {
	status, ok := statusByKind[kind]
	if !ok {
		kind, status = KindInternal, http.StatusInternalServerError
	}
	return &Error{Kind: kind, Status: status, Message: message, Details: details}
}

// Wrap constructs an error of the given kind that keeps cause for logging.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.Err = cause
	return e
}

func Validation(message string, details ...string) *Error {
	return New(KindValidation, message, details...)
}

func Conflict(message string) *Error { return New(KindConflict, message) }

func Unauthorized(message string) *Error { return New(KindAuthentication, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Dependency(message string, cause error) *Error {
	return Wrap(KindDependency, message, cause)
}

func TokenPersistence(cause error) *Error {
	return Wrap(KindTokenPersistence, "something went wrong while generating tokens", cause)
}

func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// From extracts an *Error from err. Errors outside the taxonomy become a generic internal
// error so no internal detail reaches the caller.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e
	}
	return Internal("internal server error", err)
}

// RequireFields returns a validation error naming every blank field, or nil.
// Fields are given as name/value pairs.
func RequireFields(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i]+" is required")
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return Validation("all fields are required", missing...)
}
