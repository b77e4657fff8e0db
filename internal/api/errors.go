package api

import (
	"errors"
	"fmt"
)

// ErrSessionExpired marks failures that can only be fixed by logging in again.
var ErrSessionExpired = errors.New("session expired")

// HTTPError is returned for any non-2xx answer, and by Do for an envelope
// with a non-zero code.
type HTTPError struct {
	StatusCode int
	Status     string
	Code       int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s", e.Status)
}

// IsSessionExpired reports whether err means the user must log in again.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// StatusCode extracts the HTTP status of err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
