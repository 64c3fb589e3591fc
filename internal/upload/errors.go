// Package upload implements a resumable, chunked file-upload client for
// Drive-style storage APIs. A Session drives the two-phase protocol
// (session initiation, then content transfer) as an explicit state machine,
// resuming from server-reported byte offsets and retrying transient
// failures with exponential backoff.
package upload

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for terminal session outcomes.
// Use errors.Is(err, upload.ErrUnauthorized) to check.
var (
	ErrUnauthorized     = errors.New("upload: unauthorized")
	ErrNotFound         = errors.New("upload: not found")
	ErrNoLocation       = errors.New("upload: initiation response missing Location header")
	ErrRetriesExhausted = errors.New("upload: retry budget exhausted")
)

// StatusError is the terminal error for a session that failed on a fatal
// HTTP response. It carries the raw response body so callers can inspect
// the API's error payload.
type StatusError struct {
	StatusCode int
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// fatalSentinel maps a fatal status code to its sentinel error.
// Only 401 and 404 are fatal; every other failure is transient.
func fatalSentinel(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}
