// ABOUTME: Error taxonomy for conversation operations
// ABOUTME: Every failure carries a Kind so callers can branch without string matching

package conversation

import (
	"errors"
	"fmt"
)

// Kind classifies a conversation failure.
type Kind string

const (
	KindNotInitialized       Kind = "not_initialized"
	KindInvalidModel         Kind = "invalid_model"
	KindNoActiveConversation Kind = "no_active_conversation"
	KindSessionNotFound      Kind = "session_not_found"
	KindBackendUnavailable   Kind = "backend_unavailable"
	KindRateLimitExceeded    Kind = "rate_limit_exceeded"
	KindQuotaExceeded        Kind = "quota_exceeded"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindContentFiltered      Kind = "content_filtered"
	KindInternalError        Kind = "internal_error"
)

// Error is a classified conversation failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error. If err is already classified,
// its kind is preserved and kind is ignored: a transport that surfaces a
// specific kind (rate limit, quota) is never coerced to something vaguer.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	if existing := asError(err); existing != nil {
		return &Error{Kind: existing.Kind, Message: fmt.Sprintf(format, args...), Err: err}
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or KindInternalError for unclassified
// errors. A nil err has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e := asError(err); e != nil {
		return e.Kind
	}
	return KindInternalError
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	e := asError(err)
	return e != nil && e.Kind == kind
}

func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
