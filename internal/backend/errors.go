package backend

import (
	"errors"
	"fmt"
)

// BackendError is returned when the service answers with a status other
// than 200. Body is the raw response text.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// TransportError covers failures before a complete response was received:
// DNS, refused connections, timeouts, truncated bodies.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	return "backend unreachable: " + e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError is returned for a 200 response whose body is not JSON or has
// no usable answer field.
type ParseError struct {
	Reason string
	Body   string
}

func (e *ParseError) Error() string {
	return "invalid backend response: " + e.Reason
}

// Kind names the error class for logs and metrics.
func Kind(err error) string {
	var (
		backendErr   *BackendError
		transportErr *TransportError
		parseErr     *ParseError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &backendErr):
		return "backend"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "other"
	}
}
