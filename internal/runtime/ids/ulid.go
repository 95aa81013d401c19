package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	return createAt(time.Now())
}

func createAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// IsULID reports whether s is a well-formed ULID. Correlation ids coming from
// upstream producers are kept verbatim even when they are not ULIDs.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time extracts the creation time encoded in a ULID.
func Time(s string) (time.Time, bool) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()).UTC(), true
}
