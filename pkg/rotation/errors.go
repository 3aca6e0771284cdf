package rotation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies rotation failures. None of them are fatal to the
// engine: a failed key is retried on the next scheduled cycle.
type ErrorKind string

const (
	// ErrUpstreamTimeout means the provider did not answer within the
	// bounded rotation timeout.
	ErrUpstreamTimeout ErrorKind = "upstream_timeout"

	// ErrUpstreamRejected means the provider answered but refused the
	// rotation.
	ErrUpstreamRejected ErrorKind = "upstream_rejected"

	// ErrNotSupported means the rotator does not manage the requested key.
	// This is an expected, common outcome, not an exceptional one.
	ErrNotSupported ErrorKind = "not_supported"
)

// Error is a structured rotation failure.
type Error struct {
	Kind ErrorKind
	Key  string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("rotation of key %q: %s", e.Key, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, defaulting to upstream_rejected for
// untyped errors.
func KindOf(err error) ErrorKind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ErrUpstreamRejected
}

// IsNotSupported reports whether the error marks an unsupported key.
func IsNotSupported(err error) bool {
	return KindOf(err) == ErrNotSupported
}
