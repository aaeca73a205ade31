package id

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a ULID timestamped at t. ULIDs sort by creation time,
// so Message-IDs stay ordered in relay logs.
func New(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// MessageID formats an RFC 5322 Message-ID for mail sent at t from host.
func MessageID(t time.Time, host string) string {
	return fmt.Sprintf("<%s@%s>", New(t), host)
}
