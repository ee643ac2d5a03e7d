package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrSecretNotFound   = errors.New("secret not found")
	ErrInvalidSecretKey = errors.New("invalid secret key")

	ErrLoginTimeout        = errors.New("login timed out")
	ErrGuardCodeRequired   = errors.New("guard code required")
	ErrLoginInProgress     = errors.New("login already in progress")
	ErrNotConnected        = errors.New("not connected")
	ErrNotAFriend          = errors.New("peer is not a friend")
	ErrInvalidSharedSecret = errors.New("invalid shared secret")
)

// ErrorCodeExpiredCredential is the platform result code reported when a
// cached logon credential is no longer accepted.
const ErrorCodeExpiredCredential = 5

type AuthCodeError struct {
	Err error
}

func (e *AuthCodeError) Error() string {
	return fmt.Sprintf("generate guard code: %v", e.Err)
}

func (e *AuthCodeError) Unwrap() error {
	return e.Err
}

type LoginFailedError struct {
	Cause error
}

func (e *LoginFailedError) Error() string {
	return fmt.Sprintf("login failed: %v", e.Cause)
}

func (e *LoginFailedError) Unwrap() error {
	return e.Cause
}

// PlatformError is an error reported by the platform session client.
type PlatformError struct {
	Code    int
	Message string
}

func (e *PlatformError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform error %d", e.Code)
	}
	return fmt.Sprintf("platform error %d: %s", e.Code, e.Message)
}

func (e *PlatformError) ExpiredCredential() bool {
	return e != nil && e.Code == ErrorCodeExpiredCredential
}
