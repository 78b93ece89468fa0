// Package ids provides the ULID primitive shared by every promptbook table.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars). Zero now means the current time.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Valid reports whether s parses as a ULID. Used to reject junk path parameters early.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
