package domain

import "time"

// PendingVerification is the one-time code issued for an email that has no account yet.
// At most one exists per email; a new request replaces the previous one.
type PendingVerification struct {
	Code      string
	ExpiresAt time.Time
	Verified  bool
}

// Expired reports whether the code's validity window has passed at now.
func (v PendingVerification) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// Confirmation is the outcome of checking a submitted code.
type Confirmation int

const (
	ConfirmVerified Confirmation = iota
	ConfirmNotFound
	ConfirmExpired
	ConfirmMismatch
)

func (c Confirmation) String() string {
	switch c {
	case ConfirmVerified:
		return "verified"
	case ConfirmNotFound:
		return "not_found"
	case ConfirmExpired:
		return "expired"
	case ConfirmMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}
