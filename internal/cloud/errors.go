package cloud

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotFound = errors.New("remote file not found")

// APIError is a non-2xx response from a Google API endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google api: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports server errors (5xx) and rate limiting (429).
// Other client errors are permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}
