package token

import "strings"

const (
	scheme = "Bearer "
	prefix = "demo::"
)

// Issue returns the bearer token for an account. It carries the email in the clear
// and is not a security credential.
func Issue(email string) string {
	return prefix + email
}

// Parse extracts the email from an Authorization header value of the form
// "Bearer demo::<email>". Any other shape yields "".
func Parse(authHeader string) string {
	tok, ok := strings.CutPrefix(authHeader, scheme)
	if !ok {
		return ""
	}
	email, ok := strings.CutPrefix(tok, prefix)
	if !ok {
		return ""
	}
	return email
}
