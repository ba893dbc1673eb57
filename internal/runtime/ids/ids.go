package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// Broker message ids use it; correlation keys do not.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewCorrelationKey mints a random 128-bit key rendered as a UUID string.
func NewCorrelationKey() string {
	return uuid.NewString()
}

// IsCorrelationKey reports whether s parses as a key produced by NewCorrelationKey.
func IsCorrelationKey(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
