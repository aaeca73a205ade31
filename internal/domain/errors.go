package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrUnavailable  = errors.New("unavailable")
)

// Error is a domain failure whose message is safe to show to the client.
// Kind is one of the sentinels above.
type Error struct {
	Message string
	Kind    error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(msg string, kind error) *Error {
	return &Error{Message: msg, Kind: kind}
}

// Client-facing failures of the signup/login flow.
var (
	ErrEmailRequired          = newError("email is required", ErrBadRequest)
	ErrEmailAndCodeRequired   = newError("email and code are required", ErrBadRequest)
	ErrSignupFieldsRequired   = newError("name, email and password required", ErrBadRequest)
	ErrLoginFieldsRequired    = newError("email and password required", ErrBadRequest)
	ErrUserExists             = newError("user already exists", ErrConflict)
	ErrVerificationNotFound   = newError("verification not found", ErrNotFound)
	ErrVerificationExpired    = newError("verification expired", ErrBadRequest)
	ErrInvalidCode            = newError("invalid verification code", ErrBadRequest)
	ErrNotVerified            = newError("email must be verified before signup", ErrBadRequest)
	ErrInvalidCredentials     = newError("invalid credentials", ErrUnauthorized)
	ErrNoIdentity             = newError("unauthorized", ErrUnauthorized)
	ErrVerificationSendFailed = newError("failed to send verification email", ErrUnavailable)
	ErrAccountSaveFailed      = newError("failed to save account", ErrUnavailable)
)
