// Package errors carries the typed errors returned by services. A Code picks
// the HTTP status and the message clients see; the wrapped cause stays in logs.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeEmptyCart    Code = "EMPTY_CART"
	CodeUnavailable  Code = "PRODUCT_UNAVAILABLE"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code is presented over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	withDetails = true
	noDetails   = false
	retryable   = true
	final       = false
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:   {http.StatusBadRequest, final, "validation failed", withDetails},
	CodeUnauthorized: {http.StatusUnauthorized, final, "authentication required", noDetails},
	CodeForbidden:    {http.StatusForbidden, final, "access denied", noDetails},
	CodeNotFound:     {http.StatusNotFound, final, "resource not found", noDetails},
	CodeConflict:     {http.StatusConflict, final, "conflict detected", noDetails},
	CodeEmptyCart:    {http.StatusBadRequest, final, "cart is empty", noDetails},
	CodeUnavailable:  {http.StatusNotFound, final, "product unavailable", withDetails},
	CodeIdempotency:  {http.StatusConflict, final, "idempotency key reused", withDetails},
	CodeRateLimit:    {http.StatusTooManyRequests, final, "rate limit exceeded", noDetails},
	CodeInternal:     {http.StatusInternalServerError, retryable, "internal server error", noDetails},
	CodeDependency:   {http.StatusServiceUnavailable, retryable, "dependency unavailable", withDetails},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	meta, ok := metadataByCode[code]
	if !ok {
		return metadataByCode[CodeInternal]
	}
	return meta
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code to cause. A nil cause behaves like New.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
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

// WithDetails sets client-visible details; they are dropped for codes whose
// metadata disallows them.
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

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether any *Error in err's chain has code.
func Is(err error, code Code) bool {
	for typed := As(err); typed != nil; typed = As(typed.cause) {
		if typed.code == code {
			return true
		}
	}
	return false
}

// Retryable reports whether a caller may retry err. Untyped errors are treated
// as internal.
func Retryable(err error) bool {
	return MetadataFor(As(err).Code()).Retryable
}
