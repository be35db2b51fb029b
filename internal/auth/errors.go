package auth

import (
	"errors"
)

// Messages carried by refresh failures.
const (
	MsgNoRefreshToken = "no refresh token"
	MsgRefreshFailed  = "refresh failed"
	MsgFallback       = "An error occurred"
)

// Sentinels wrapped inside *Error for errors.Is checks.
var (
	ErrNoRefreshToken  = errors.New("auth: no refresh token stored")
	ErrRefreshRejected = errors.New("auth: refresh rejected")
)

// Error is an authentication failure with a human-readable Message suitable
// for display.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }
