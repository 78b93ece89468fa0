package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes caps request bodies when the caller passes a non-positive limit.
const DefaultMaxBodyBytes int64 = 1 << 20

var (
	// ErrEmptyBody is returned by DecodeJSON when the request has no body.
	ErrEmptyBody = errors.New("empty body")

	// ErrBodyTooLarge is returned by DecodeJSON when the body exceeds the limit.
	ErrBodyTooLarge = errors.New("body too large")
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// MessageBody is the JSON shape of plain success acknowledgements.
type MessageBody struct {
	Message string `json:"message"`
}

// WriteJSON writes v with status. Responses are never cached.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage writes {"message": msg}.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, MessageBody{Message: msg})
}

// WriteError writes {"message": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Message: msg})
}

// WriteFieldErrors writes a 400 with a per-field error map.
func WriteFieldErrors(w http.ResponseWriter, msg string, fields map[string][]string) {
	WriteJSON(w, http.StatusBadRequest, ErrorBody{Message: msg, Errors: fields})
}

// WriteDecodeError maps a DecodeJSON error to 413 or 400.
func WriteDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	WriteError(w, http.StatusBadRequest, "malformed request body")
}

// DecodeJSON decodes exactly one JSON object into dst. Keys dst does not declare are ignored; trailing data is rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			return ErrEmptyBody
		default:
			return fmt.Errorf("decode: %w", err)
		}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
