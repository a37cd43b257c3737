package domain

import (
	"errors"
	"fmt"
)

// TransportError wraps a failure raised by a transport adapter. Transient
// errors (timeouts, rate limits, connection drops) are retryable; fatal ones
// (malformed address, unsupported network, auth failure) are never retried.
type TransportError struct {
	Transient bool
	Err       error
}

func (e *TransportError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s transport error: %v", kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TransientError wraps err as a retryable transport error.
func TransientError(err error) *TransportError {
	return &TransportError{Transient: true, Err: err}
}

// FatalError wraps err as a non-retryable transport error.
func FatalError(err error) *TransportError {
	return &TransportError{Transient: false, Err: err}
}

// IsTransient reports whether err is a retryable transport error. Errors
// that are not TransportErrors at all (e.g. context cancellation) are not
// transient.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Transient
}

// IsFatalTransport reports whether err is a non-retryable transport error.
func IsFatalTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && !te.Transient
}

// ConfigError reports an invalid construction input. Raised synchronously
// before any I/O, never retried or wrapped into events.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}
