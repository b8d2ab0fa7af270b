// Package errors provides structured error handling for certwatch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: configuration and bundle construction errors
//   - 2XX: filesystem and watch errors
//   - 5XX: internal errors
package errors

import "fmt"

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration and bundle construction errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates filesystem and watch errors.
	CategoryIO Category = "IO"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"
	ErrCodeBundleUnknown = "ERR_102_BUNDLE_UNKNOWN"
	ErrCodeNotWatchable  = "ERR_103_NOT_WATCHABLE"

	// IO errors (200-299)
	ErrCodePathNotFound  = "ERR_201_PATH_NOT_FOUND"
	ErrCodeWatcherClosed = "ERR_202_WATCHER_CLOSED"
	ErrCodePEMInvalid    = "ERR_203_PEM_INVALID"
	ErrCodeKeyMismatch   = "ERR_204_KEY_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_500_INTERNAL"
)

// CertwatchError is the structured error type used at command boundaries.
type CertwatchError struct {
	// Code is the unique error code (e.g. "ERR_101_CONFIG_INVALID").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category.
	Category Category

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Suggestion is an actionable remedy for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *CertwatchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CertwatchError) Unwrap() error {
	return e.Cause
}

// Is matches CertwatchErrors by code, enabling errors.Is.
func (e *CertwatchError) Is(target error) bool {
	if t, ok := target.(*CertwatchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *CertwatchError) WithDetail(key, value string) *CertwatchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable remedy.
func (e *CertwatchError) WithSuggestion(suggestion string) *CertwatchError {
	e.Suggestion = suggestion
	return e
}

// New creates a CertwatchError with the given code and message. The
// category is derived from the code's number range.
func New(code, message string, cause error) *CertwatchError {
	return &CertwatchError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a CertwatchError from an existing error, reusing its
// message. Returns nil for a nil error.
func Wrap(code string, err error) *CertwatchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	default:
		return CategoryInternal
	}
}
