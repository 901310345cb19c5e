// Package clockid centralizes timestamp and opaque-id generation so the
// rest of the module never calls time.Now or uuid.New directly.
package clockid

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Clock provides monotonic-safe UTC timestamps and opaque id generation.
// The zero value is ready to use; Frozen returns a Clock whose Now() is
// pinned, for deterministic tests.
type Clock struct {
	fixed *time.Time
}

// New returns a Clock backed by the real wall clock.
func New() Clock {
	return Clock{}
}

// Frozen returns a Clock whose Now() always returns t (UTC), for tests.
func Frozen(t time.Time) Clock {
	fixed := t.UTC()
	return Clock{fixed: &fixed}
}

// Now returns the current UTC time, or the frozen instant in tests.
func (c Clock) Now() time.Time {
	if c.fixed != nil {
		return *c.fixed
	}
	return time.Now().UTC()
}

// NewID mints a new opaque aggregate identifier.
func (c Clock) NewID() uuid.UUID {
	return uuid.New()
}

// NewToken returns a URL-safe opaque string with at least nBytes of
// entropy, suitable for single-use action-token credentials. nBytes
// below 32 is raised to 32, so a token always carries >= 256 bits of
// entropy.
func NewToken(nBytes int) (string, error) {
	if nBytes < 32 {
		nBytes = 32
	}
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("clockid: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AsUTC treats a naive (non-UTC-tagged) timestamp read from storage as UTC.
func AsUTC(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
