// Package apperror defines the service's error taxonomy: a small closed set
// of codes that every boundary (HTTP handler, worker, store) reasons about
// instead of ad-hoc error strings.
package apperror

import (
	"errors"
	"fmt"
)

// Code classifies an Error into one of the kinds the rest of the service
// switches on. New codes should be rare — most failures fit one of these.
type Code string

const (
	// CodeValidation marks malformed or out-of-range caller input.
	CodeValidation Code = "validation_error"
	// CodeInfeasible marks a VRPTW solve that found no feasible route.
	CodeInfeasible Code = "infeasible"
	// CodeProviderUnavailable marks a failed call to the external map/traffic provider.
	CodeProviderUnavailable Code = "provider_unavailable"
	// CodeStoreUnavailable marks a failed call to the session-state store.
	CodeStoreUnavailable Code = "store_unavailable"
	// CodeInternal marks an unexpected internal failure.
	CodeInternal Code = "internal_error"
)

// Error is the single error type every component returns. Details carries
// optional structured context (e.g. the offending field, or counts).
type Error struct {
	Code    Code
	Message string
	Field   string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As work through this type.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value pair to Details, creating the map if needed.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Validation builds a validation error for the named field.
func Validation(field, message string) *Error {
	return &Error{Code: CodeValidation, Message: message, Field: field}
}

// Infeasible builds an error for a VRPTW solve with no feasible solution.
func Infeasible(message string) *Error {
	return &Error{Code: CodeInfeasible, Message: message}
}

// ProviderUnavailable wraps a failure reaching the external map/traffic provider.
func ProviderUnavailable(cause error) *Error {
	return &Error{Code: CodeProviderUnavailable, Message: "map/traffic provider unavailable", Cause: cause}
}

// StoreUnavailable wraps a failure reaching the session-state store.
func StoreUnavailable(cause error) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: "state store unavailable", Cause: cause}
}

// Internal wraps an unexpected internal failure.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Cause: cause}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, returning
// ok=false otherwise.
func CodeOf(err error) (Code, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}
