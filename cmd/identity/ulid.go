package identity

import (
	"time"

	"github.com/Fillsogood/promptbook/cmd/identity/ids"
)

// NewID returns a new ULID (26-char string) for a user row.
func NewID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
