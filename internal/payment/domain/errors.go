package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies processor failures so call sites never inspect raw payloads.
type ErrorKind string

const (
	KindResourceMissing ErrorKind = "resource_missing"
	KindInvalidRequest  ErrorKind = "invalid_request"
	KindAuthentication  ErrorKind = "authentication"
	KindRateLimited     ErrorKind = "rate_limited"
	KindUnavailable     ErrorKind = "unavailable"
	KindUnknown         ErrorKind = "unknown"
)

var ErrNotConfigured = errors.New("payment_processor_not_configured")

// Error is the normalized processor error produced by adapters.
type Error struct {
	Kind       ErrorKind
	Detail     string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("processor: %s", e.Kind)
	}
	return fmt.Sprintf("processor: %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the error kind as a low-cardinality string.
func (e *Error) Code() string { return string(e.Kind) }

// Transient reports whether retrying the same call may succeed.
func (e *Error) Transient() bool {
	return e.Kind == KindUnavailable || e.Kind == KindRateLimited
}

// KindOf returns the normalized kind of err, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return KindUnknown
}

func IsResourceMissing(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindResourceMissing
}

// IsProcessorError reports whether err originated at the processor boundary.
func IsProcessorError(err error) bool {
	var pErr *Error
	return errors.As(err, &pErr)
}
