package chatsync

import "errors"

var (
	// ErrNotFound is returned by capability implementations when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionResolution means the session could not be resolved. Fatal to Start.
	ErrSessionResolution = errors.New("session resolution failed")
	// ErrProfileResolution means the counterpart profile is unavailable. Not fatal.
	ErrProfileResolution = errors.New("profile resolution failed")
	// ErrSubscription means the live subscription could not be opened or dropped.
	ErrSubscription = errors.New("subscription error")
	// ErrSendFailed means the transport rejected an append.
	ErrSendFailed = errors.New("send failed")
	// ErrNotActive is returned for operations outside the Live state.
	ErrNotActive = errors.New("controller not active")
)
