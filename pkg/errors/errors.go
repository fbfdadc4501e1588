// Package errors holds the sentinel errors shared by the index, the stores
// and the API, and maps them to HTTP status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTermNotFound = errors.New("term not found")
	// ErrStoreCorruption: the store reported a key present but could not
	// produce its blob.
	ErrStoreCorruption = errors.New("store corruption")
	// ErrBlobCorruption: a stored blob does not decode as a posting list.
	ErrBlobCorruption = errors.New("blob corruption")
	// ErrInvariantViolation: a decoded posting list is not strictly ascending.
	ErrInvariantViolation = errors.New("invariant violation")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrTimeout            = errors.New("operation timed out")
)

// AppError attaches a caller-facing message and status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// Corruption reports whether err means stored postings can no longer be
// trusted, as opposed to a transient or caller fault.
func Corruption(err error) bool {
	return errors.Is(err, ErrStoreCorruption) ||
		errors.Is(err, ErrBlobCorruption) ||
		errors.Is(err, ErrInvariantViolation)
}

// HTTPStatusCode picks the response status for err. An AppError anywhere in
// the chain wins; otherwise the sentinel decides.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrTermNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
