// Package remote defines the failure taxonomy shared by the workspace and
// tracker API clients. Every remote failure is an *APIError with a Kind;
// none of them is fatal to the caller.
package remote

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a remote failure.
type ErrorKind string

const (
	// KindUnauthorized: the token is missing, invalid, or revoked.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindNotFound: the addressed object does not exist or is not visible.
	KindNotFound ErrorKind = "not_found"
	// KindNetwork: transport failure, timeout, or a remote-side error that
	// is not one of the others.
	KindNetwork ErrorKind = "network"
	// KindMalformed: the response body could not be decoded.
	KindMalformed ErrorKind = "malformed"
	// KindRejected: the remote processed a write and declined it.
	KindRejected ErrorKind = "rejected"
)

// APIError is the error type returned by both remote clients.
type APIError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", e.Op, e.Kind)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Errorf builds an APIError with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *APIError {
	return &APIError{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an APIError around an underlying error.
func Wrap(kind ErrorKind, op string, err error) *APIError {
	return &APIError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" when err is not an
// APIError.
func KindOf(err error) ErrorKind {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsNotFound reports whether err is a not-found remote failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsUnauthorized reports whether err is an auth failure.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}
