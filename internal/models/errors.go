package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the acquisition pipeline
type ErrorKind string

const (
	KindInvalidURL        ErrorKind = "invalid_url"
	KindUpstream          ErrorKind = "upstream"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindTransport         ErrorKind = "transport"
	KindTimeout           ErrorKind = "timeout"
	KindPersistence       ErrorKind = "persistence"
	KindCancelled         ErrorKind = "cancelled"
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrInvalidURL        = &Error{Kind: KindInvalidURL}
	ErrUpstream          = &Error{Kind: KindUpstream}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrTransport         = &Error{Kind: KindTransport}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrPersistence       = &Error{Kind: KindPersistence}
	ErrCancelled         = &Error{Kind: KindCancelled}
)

// Error is the single error type of the pipeline
type Error struct {
	Kind   ErrorKind
	Op     string // e.g. "resolve", "transfer", "history.append"
	Status int    // HTTP status when known, 0 otherwise
	Err    error
}

// NewError wraps err with a kind and operation
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewStatusError wraps err with a kind, operation and HTTP status
func NewStatusError(kind ErrorKind, op string, status int, err error) *Error {
	return &Error{Kind: kind, Op: op, Status: status, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can test against the sentinels
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether a caller may retry the failed operation
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUpstream, KindTransport, KindTimeout:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable pipeline error.
// Errors outside the taxonomy are treated as retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return err != nil
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
