package feed

import (
	"fmt"
)

// TransportError covers network failures, timeouts and server-side errors.
// Callers retry these with backoff.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("feed transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError means the feed rejected our credentials. Not retried; the
// consumer loop halts and surfaces it to the operator.
type AuthError struct {
	Op     string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("feed auth error: %s: HTTP %d", e.Op, e.Status)
}

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

func transportStatusErr(op string, status int) error {
	return &TransportError{Op: op, Err: fmt.Errorf("HTTP %d", status)}
}
