package prompt

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a prompt does not exist or is owned by another user.
	ErrNotFound = errors.New("prompt: not found")

	// ErrInvalidInput is the kind of every FieldError.
	ErrInvalidInput = errors.New("prompt: invalid input")

	// ErrEmptyInput is returned by Run when the trimmed input text is empty.
	ErrEmptyInput = errors.New("prompt: empty input")

	// ErrUnknownTag is returned when a tag id does not reference an existing tag.
	ErrUnknownTag = errors.New("prompt: unknown tag")

	// ErrConflict is returned when a tag name is already taken.
	ErrConflict = errors.New("prompt: conflict")

	// ErrLogWrite is returned by Run when the run log row could not be written.
	ErrLogWrite = errors.New("prompt: log write failed")
)

// FieldError describes a rejected input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("prompt: %s: %s", e.Field, e.Reason)
}

func (e FieldError) Unwrap() error { return ErrInvalidInput }

// UnknownTagError names the first tag id that did not resolve.
type UnknownTagError struct {
	ID string
}

func (e UnknownTagError) Error() string {
	return fmt.Sprintf("prompt: unknown tag %q", e.ID)
}

func (e UnknownTagError) Unwrap() error { return ErrUnknownTag }

// AsFieldError extracts a FieldError from err.
func AsFieldError(err error) (FieldError, bool) {
	var fe FieldError
	if errors.As(err, &fe) {
		return fe, true
	}
	return FieldError{}, false
}
