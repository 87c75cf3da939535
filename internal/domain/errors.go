package domain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes domain errors for transport mapping.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "validation_failed"
	CodePermissionDenied    ErrorCode = "permission_denied"
	CodeNotFound            ErrorCode = "not_found"
	CodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	CodeInternal            ErrorCode = "internal"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrPermissionDenied means location access is not granted for the device.
	ErrPermissionDenied = errors.New("location permission denied")
	ErrNotFound         = errors.New("not found")
)

// Error is the typed error returned by services. The transport layer maps
// Code to a status and never exposes Err to clients.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with an optional cause.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Error code from an error chain. Sentinels map to their
// codes; anything else is internal.
func CodeOf(err error) ErrorCode {
	var de *Error
	switch {
	case errors.As(err, &de):
		return de.Code
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
