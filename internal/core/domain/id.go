package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new lowercase ULID used as an envelope id.
// IDs generated within the same millisecond sort in creation order.
func NewID() string {
	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	if err != nil {
		// Monotonic entropy overflowed within one millisecond.
		return strings.ToLower(ulid.Make().String())
	}
	return strings.ToLower(id.String())
}

// NewSessionID returns a new random session id.
func NewSessionID() string {
	return uuid.NewString()
}
