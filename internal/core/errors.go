package core

import "errors"

// Error codes carried on the wire.
const (
	ErrCodeSessionNotFound = "session_not_found"
	ErrCodeListingNotFound = "listing_not_found"
	ErrCodeNotFound        = "not_found"
	ErrCodeNotParticipant  = "not_participant"
	ErrCodeForbidden       = "forbidden"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeConflict        = "conflict"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeSlowConsumer    = "slow_consumer"
	ErrCodeInternal        = "internal_error"
)

var (
	// ErrHubStopped is returned by Register after Run has returned.
	ErrHubStopped = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
