// Package errors carries the typed error codes shared by the ledger, the HTTP
// surface and the order event consumer.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// CodePayoutNotReady marks a payout attempted before the linked order completed.
	CodePayoutNotReady Code = "PAYOUT_NOT_READY"
	// CodeBalanceDrift is used on reconciliation report entries, never as an HTTP failure.
	CodeBalanceDrift Code = "BALANCE_DRIFT_DETECTED"
)

// Metadata describes how a code surfaces to clients and retry loops.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retry   = true
	details = true
)

var registry = map[Code]Metadata{
	CodeValidation:     {http.StatusBadRequest, !retry, "validation failed", details},
	CodeUnauthorized:   {http.StatusUnauthorized, !retry, "authentication required", !details},
	CodeForbidden:      {http.StatusForbidden, !retry, "access denied", !details},
	CodeNotFound:       {http.StatusNotFound, !retry, "resource not found", !details},
	CodeConflict:       {http.StatusConflict, !retry, "conflict detected", !details},
	CodeStateConflict:  {http.StatusUnprocessableEntity, !retry, "state transition disallowed", details},
	CodeIdempotency:    {http.StatusConflict, !retry, "idempotency key reused", details},
	CodeRateLimit:      {http.StatusTooManyRequests, !retry, "rate limit exceeded", !details},
	CodeInternal:       {http.StatusInternalServerError, retry, "internal server error", !details},
	CodeDependency:     {http.StatusServiceUnavailable, retry, "dependency unavailable", details},
	CodePayoutNotReady: {http.StatusConflict, retry, "payout not ready", details},
	CodeBalanceDrift:   {http.StatusOK, !retry, "balance drift detected", details},
}

// MetadataFor falls back to the internal error entry for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := registry[code]; ok {
		return meta
	}
	return registry[CodeInternal]
}

// Error is a coded failure with an optional client-facing payload.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap keeps err reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost typed error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether err carries a code that may succeed on a later
// attempt. Untyped errors are treated as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.code).Retryable
}
