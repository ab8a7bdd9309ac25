package athena

import (
	"errors"
	"fmt"
	"net"
)

// HTTPError is a non-2xx response from the directory, carrying the status
// code and the response body for diagnosis.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("directory returned %s", e.Status)
}

// ValidationError is a response whose JSON shape does not match the expected
// schema. Distinct from HTTPError so callers can tell a broken upstream
// contract from a failing upstream.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid response structure: missing required field %q", e.Field)
	}
	return fmt.Sprintf("invalid response structure: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func missingField(name string) error {
	return &ValidationError{Field: name}
}

// IsTimeout reports whether the error is a request timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnectionError reports whether the error is a transport-level failure
// (connection refused, DNS failure) rather than an HTTP or validation error.
func IsConnectionError(err error) bool {
	if IsTimeout(err) {
		return false
	}
	var httpErr *HTTPError
	var valErr *ValidationError
	if errors.As(err, &httpErr) || errors.As(err, &valErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
