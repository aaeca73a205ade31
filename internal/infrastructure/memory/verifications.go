package memory

import (
	"time"

	"github.com/mailverify-auth/internal/domain"
)

// VerificationRepo holds pending email verifications keyed by email.
// Expired records are dropped lazily when confirmed; there is no sweeper.
// It does no locking of its own: callers serialize access.
type VerificationRepo struct {
	pending map[string]domain.PendingVerification
	now     func() time.Time
}

// NewVerificationRepo builds an empty registry. A nil clock means time.Now.
func NewVerificationRepo(now func() time.Time) *VerificationRepo {
	if now == nil {
		now = time.Now
	}
	return &VerificationRepo{pending: make(map[string]domain.PendingVerification), now: now}
}

// Begin installs a fresh unverified record for email, replacing any previous one.
func (r *VerificationRepo) Begin(email, code string, ttl time.Duration) {
	r.pending[email] = domain.PendingVerification{
		Code:      code,
		ExpiresAt: r.now().Add(ttl),
	}
}

// Confirm checks code against the pending record for email. A match marks it verified;
// a mismatch keeps it for retries; an expired record is removed.
func (r *VerificationRepo) Confirm(email, code string) domain.Confirmation {
	v, ok := r.pending[email]
	if !ok {
		return domain.ConfirmNotFound
	}
	if v.Expired(r.now()) {
		delete(r.pending, email)
		return domain.ConfirmExpired
	}
	if v.Code != code {
		return domain.ConfirmMismatch
	}
	v.Verified = true
	r.pending[email] = v
	return domain.ConfirmVerified
}

// TakeIfVerified removes and returns the record for email only if it is verified
// and unexpired. Otherwise it changes nothing.
func (r *VerificationRepo) TakeIfVerified(email string) (domain.PendingVerification, bool) {
	v, ok := r.pending[email]
	if !ok || !v.Verified || v.Expired(r.now()) {
		return domain.PendingVerification{}, false
	}
	delete(r.pending, email)
	return v, true
}

// Restore puts back a record taken by TakeIfVerified when the operation that
// consumed it could not complete.
func (r *VerificationRepo) Restore(email string, v domain.PendingVerification) {
	if _, ok := r.pending[email]; ok {
		return
	}
	r.pending[email] = v
}

func (r *VerificationRepo) Len() int { return len(r.pending) }
