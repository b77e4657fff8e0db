package daemon

import (
	"errors"
	"fmt"
)

// HTTPError is returned when the daemon answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("daemon responded %s", e.Status)
}

// CoreError is returned when the daemon answers 2xx but the envelope carries a
// non-zero code.
type CoreError struct {
	Action  string
	Code    int
	Message string
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("daemon %s failed (code %d): %s", e.Action, e.Code, e.Message)
}

// IsCoreError checks if an error is a CoreError.
func IsCoreError(err error) bool {
	var coreErr *CoreError
	return errors.As(err, &coreErr)
}
