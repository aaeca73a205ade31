package middleware

import (
	"context"
	"net/http"

	"github.com/mailverify-auth/internal/domain"
)

type contextKey string

const AccountKey contextKey = "account"

// Identifier resolves an Authorization header value to an account.
type Identifier interface {
	Identify(ctx context.Context, authHeader string) (*domain.Account, error)
}

// Auth returns middleware that resolves the Bearer token and injects the account into context.
func Auth(id Identifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, err := id.Identify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), AccountKey, acc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext extracts the authenticated account from the request context.
func AccountFromContext(ctx context.Context) (*domain.Account, bool) {
	a, ok := ctx.Value(AccountKey).(*domain.Account)
	return a, ok
}
