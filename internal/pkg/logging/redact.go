package logging

import (
	"strings"
	"unicode/utf8"
)

// RedactEmail keeps the first 2 runes of the local part and the domain,
// e.g. "alice@x.com" -> "al****@x.com". Malformed addresses and local parts
// shorter than 3 runes are returned unchanged.
func RedactEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}

	local, domain := s[:at], s[at+1:]
	if utf8.RuneCountInString(local) < 3 {
		return s
	}

	offset := 0
	for count := 0; count < 2; count++ {
		_, size := utf8.DecodeRuneInString(local[offset:])
		offset += size
	}
	return local[:offset] + "****@" + domain
}
