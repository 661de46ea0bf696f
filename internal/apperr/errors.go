// Package apperr defines the error kinds shared by the store, generation and
// HTTP layers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindUpstream      Kind = "upstream"
	KindMalformed     Kind = "malformed_response"
	KindPersistence   Kind = "persistence"
	KindInternal      Kind = "internal"
)

// Sentinel errors for common conditions.
var (
	// ErrConversationCompleted is returned when a completed conversation is mutated.
	ErrConversationCompleted = &Error{Kind: KindValidation, Message: "conversation is already completed"}

	// ErrConversationChanged is returned when a guarded write finds the log
	// at a different length than the caller read.
	ErrConversationChanged = &Error{Kind: KindValidation, Message: "conversation changed while the request was in progress"}

	// ErrConversationNotFound is returned when a conversation ID does not resolve.
	ErrConversationNotFound = &Error{Kind: KindNotFound, Message: "conversation not found"}

	// ErrSessionNotFound is returned when a session ID does not resolve.
	ErrSessionNotFound = &Error{Kind: KindNotFound, Message: "session not found"}

	// ErrNotAuthorized is returned when the actor does not own the resource.
	ErrNotAuthorized = &Error{Kind: KindAuthorization, Message: "not authorized to access this resource"}
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by kind and message so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Retryable reports whether the caller may retry the operation unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstream
}

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation reports a missing or invalid input field.
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, nil, format, args...)
}

// Upstream wraps a failure of the external generation service.
func Upstream(cause error, format string, args ...any) *Error {
	return newf(KindUpstream, cause, format, args...)
}

// Malformed wraps generation output that could not be normalized or decoded.
func Malformed(cause error, format string, args ...any) *Error {
	return newf(KindMalformed, cause, format, args...)
}

// Persistence wraps a store failure.
func Persistence(cause error, format string, args ...any) *Error {
	return newf(KindPersistence, cause, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsClientError reports whether err should be surfaced as a 4xx.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindAuthorization:
		return true
	}
	return false
}
